package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Transport 定义单个接收方的消息投递接口。
type Transport interface {
	SendText(ctx context.Context, recipient int64, text string) error
}

// TelegramTransport 通过 Telegram Bot API 推送消息。
type TelegramTransport struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramTransport 构造 Telegram 投递器，baseURL 为空时使用 api.telegram.org。
func NewTelegramTransport(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramTransport{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram_transport").Logger(),
	}
}

// SendText 调用 sendMessage API 推送文本，超长时按 Telegram 长度限制分段。
func (t *TelegramTransport) SendText(ctx context.Context, recipient int64, text string) error {
	for _, chunk := range SplitText(text, MaxMessageRunes) {
		if err := t.send(ctx, recipient, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *TelegramTransport) send(ctx context.Context, recipient int64, text string) error {
	payload := map[string]any{
		"chat_id":                  recipient,
		"text":                     text,
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	t.logger.Debug().Int64("recipient", recipient).Int("chars", len(text)).Msg("message sent")
	return nil
}

var _ Transport = (*TelegramTransport)(nil)
