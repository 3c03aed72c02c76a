package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
)

// Subscriptions prints the persisted recipient to networks mapping.
func (a *App) Subscriptions(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	subs, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Fprintln(a.Out, "no subscriptions found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Recipient\tNetworks")
	for _, id := range subs.Recipients() {
		fmt.Fprintf(writer, "%d\t%s\n", id, strings.Join(subs[id], ", "))
	}
	writer.Flush()
	return nil
}
