// notify/telegram.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"fx_sentinel_go/logs"
)

var _ Channel = (*TelegramChannel)(nil)

const telegramAPIBase = "https://api.telegram.org/bot"

// TelegramChannel long-polls the Telegram bot API for operator commands
// and sends replies to a single configured chat. Messages from any other
// chat are ignored.
type TelegramChannel struct {
	token   string
	chatID  string
	baseURL string
	http    *http.Client

	pollTimeout time.Duration
	offset      int64
}

// NewTelegramChannel builds a channel for the given bot token and chat id.
func NewTelegramChannel(token, chatID string) *TelegramChannel {
	return &TelegramChannel{
		token:       token,
		chatID:      chatID,
		baseURL:     telegramAPIBase + token,
		http:        &http.Client{Timeout: 40 * time.Second},
		pollTimeout: 30 * time.Second,
	}
}

// SetBaseURL points the channel at a different API host (tests).
func (t *TelegramChannel) SetBaseURL(url string) {
	t.baseURL = url
}

// Send posts one message to the configured chat.
func (t *TelegramChannel) Send(text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	resp, err := t.http.Post(t.baseURL+"/sendMessage", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram sendMessage returned HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type telegramUpdates struct {
	OK     bool             `json:"ok"`
	Result []telegramUpdate `json:"result"`
}

// Listen long-polls getUpdates, tracking the update offset so each command
// is delivered exactly once, and forwards matching-chat text to out.
func (t *TelegramChannel) Listen(ctx context.Context, out chan<- string) {
	logs.Info("[Telegram] Command polling started.")
	for {
		select {
		case <-ctx.Done():
			logs.Info("[Telegram] Command polling stopped.")
			return
		default:
		}

		updates, err := t.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logs.Errorf("[Telegram] Polling error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			t.offset = u.UpdateID
			chat := strconv.FormatInt(u.Message.Chat.ID, 10)
			if chat != t.chatID || u.Message.Text == "" {
				continue
			}
			select {
			case out <- u.Message.Text:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *TelegramChannel) getUpdates(ctx context.Context) ([]telegramUpdate, error) {
	url := fmt.Sprintf("%s/getUpdates?timeout=%d", t.baseURL, int(t.pollTimeout.Seconds()))
	if t.offset != 0 {
		url += fmt.Sprintf("&offset=%d", t.offset+1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getUpdates returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed telegramUpdates
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("getUpdates returned ok=false: %s", string(body))
	}
	return parsed.Result, nil
}
