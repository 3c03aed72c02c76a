package main

import "upgrade-alerts/internal/cli"

func main() {
	cli.Execute()
}
