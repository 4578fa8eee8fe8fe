// Package telegram implements the Bot API transport that relays Cornix
// commands to the configured chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tvcornix-go/internal/metrics"
	"tvcornix-go/internal/signal"
)

const defaultBaseURL = "https://api.telegram.org"

// Message is the subset of the sendMessage response the relay cares about.
type Message struct {
	MessageID int64 `json:"message_id"`
}

// BotInfo describes the bot identity returned by getMe.
type BotInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// APIError is a transport failure annotated with a human-readable hint so
// deployment issues (DNS, timeouts, bad tokens) are diagnosable from logs.
type APIError struct {
	Op         string
	StatusCode int
	Hint       string
	Err        error
}

func (e *APIError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("telegram %s: %v (%s)", e.Op, e.Err, e.Hint)
	}
	return fmt.Sprintf("telegram %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Client talks to the Telegram Bot API with bounded retries.
type Client struct {
	token    string
	chatID   string
	baseURL  string
	http     *http.Client
	attempts int
	backoff  time.Duration
	log      zerolog.Logger
}

// Option configures Client construction parameters.
type Option func(*Client)

// WithBaseURL points the client at a different API host (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetry sets the attempt count and the fixed backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// NewClient builds a transport for one bot/chat pairing.
func NewClient(token, chatID string, log zerolog.Logger, opts ...Option) *Client {
	client := &Client{
		token:    token,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		attempts: 3,
		backoff:  2 * time.Second,
		log:      log,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// SendMessage posts one Markdown message to the configured chat, retrying
// transient failures with a fixed backoff. The bot token never reaches
// the logs.
func (c *Client) SendMessage(ctx context.Context, text string) (*Message, error) {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    c.chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return nil, fmt.Errorf("encode sendMessage: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		var msg Message
		err := c.call(ctx, "sendMessage", body, &msg)
		if err == nil {
			metrics.TelegramSendsTotal.WithLabelValues("ok").Inc()
			c.log.Info().Int64("message_id", msg.MessageID).Str("chat_id", c.chatID).Msg("telegram message sent")
			return &msg, nil
		}

		lastErr = err
		metrics.TelegramSendsTotal.WithLabelValues("error").Inc()
		c.log.Warn().Err(err).Int("attempt", attempt).Int("attempts", c.attempts).Msg("telegram send failed")

		if !retriable(err) {
			break
		}
	}
	return nil, lastErr
}

// SendCornixCommand wraps a formatted command in the decorated trade
// message and delivers it.
func (c *Client) SendCornixCommand(ctx context.Context, command string, sig *signal.Signal) (*Message, error) {
	return c.SendMessage(ctx, TradeMessage(command, sig))
}

// GetMe checks connectivity and reports the bot identity.
func (c *Client) GetMe(ctx context.Context) (*BotInfo, error) {
	var info BotInfo
	if err := c.call(ctx, "getMe", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Probe retries GetMe with the client's backoff; used at startup so a slow
// platform network does not mark the bot permanently offline.
func (c *Client) Probe(ctx context.Context) (*BotInfo, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
		info, err := c.GetMe(ctx)
		if err == nil {
			return info, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt).Int("attempts", c.attempts).Msg("telegram connection probe failed")
	}
	return nil, lastErr
}

func (c *Client) call(ctx context.Context, method string, body []byte, result any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return &APIError{Op: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Op: method, Hint: classify(err, 0), Err: err}
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return &APIError{Op: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !decoded.OK {
		err := fmt.Errorf("api responded %d: %s", resp.StatusCode, decoded.Description)
		return &APIError{Op: method, StatusCode: resp.StatusCode, Hint: classify(nil, resp.StatusCode), Err: err}
	}
	if result != nil {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return &APIError{Op: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode result: %w", err)}
		}
	}
	return nil
}

// classify translates common failure modes into hints an operator can act
// on without reading stack traces.
func classify(err error, status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "bot token rejected, check TELEGRAM_BOT_TOKEN"
	case http.StatusNotFound:
		return "endpoint not found, token may be malformed"
	}
	if err == nil {
		return ""
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNS resolution failed, check network egress"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out, Telegram may be unreachable from this host"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out, Telegram may be unreachable from this host"
	}
	return ""
}

// retriable reports whether another attempt could plausibly succeed.
// Auth and not-found failures are configuration problems, not blips.
func retriable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusNotFound, http.StatusBadRequest, http.StatusForbidden:
			return false
		}
	}
	return true
}
