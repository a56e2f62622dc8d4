// Package feishu delivers assistant answers to a Feishu chat through an
// incoming webhook.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client posts text messages to a Feishu incoming webhook.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

// New returns a client for the given webhook URL. timeout bounds each
// delivery attempt; zero falls back to 10 seconds.
func New(webhookURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type message struct {
	MsgType string  `json:"msg_type"`
	Content content `json:"content"`
}

type content struct {
	Text string `json:"text"`
}

// Send posts one formatted message. Feishu reports failures in the
// response body, so success requires both HTTP 200 and a zero code.
func (c *Client) Send(ctx context.Context, title, text, timestamp string) error {
	if c.webhookURL == "" {
		return errors.New("feishu webhook URL is not configured")
	}

	formatted := fmt.Sprintf("**%s**\n\n**Timestamp:** %s\n\n**Content:**\n%s", title, timestamp, text)
	payload, err := json.Marshal(message{MsgType: "text", Content: content{Text: formatted}})
	if err != nil {
		return fmt.Errorf("encode feishu payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build feishu request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send to feishu: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read feishu response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feishu request failed with status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode feishu response: %w", err)
	}
	if result.Code != 0 {
		msg := result.Msg
		if msg == "" {
			msg = "Unknown error"
		}
		return fmt.Errorf("feishu API returned error %d: %s", result.Code, msg)
	}

	log.Printf("[FEISHU] Delivered %q (%d bytes)", title, len(text))
	return nil
}

// SendError delivers the apology message for a question that failed.
func (c *Client) SendError(ctx context.Context, question string, runErr error, timestamp string) error {
	text := fmt.Sprintf("An error occurred while processing your question:\n\n%v\n\nQuestion: %s", runErr, question)
	return c.Send(ctx, "Error", text, timestamp)
}
