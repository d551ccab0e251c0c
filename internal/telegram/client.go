// Package telegram talks to the Telegram Bot API: it sends prompts with reply
// keyboards, downloads files users attach, and turns webhook updates into
// intake events.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ent0n29/docvoice/internal/policy"
	"github.com/ent0n29/docvoice/internal/reliability"
)

const (
	DefaultBaseURL      = "https://api.telegram.org"
	DefaultMaxFileBytes = 20 << 20

	// Choices longer than this are laid out one per row.
	maxInlineLabel = 10
)

var ErrFileTooLarge = errors.New("telegram file exceeds size limit")

// Client wraps tgbotapi with the retry, size-limit and redaction rules the
// intake engine relies on.
type Client struct {
	Token        string
	BaseURL      string
	HTTP         *http.Client
	MaxFileBytes int64
	// Retry applies to Bot API method calls, not to file downloads.
	Retry reliability.Policy
}

// SendPrompt sends text to the user's private chat. Non-empty choices become
// a one-time reply keyboard; otherwise any previous keyboard is removed.
func (c *Client) SendPrompt(ctx context.Context, userID, text string, choices []string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("missing telegram chat id")
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q", userID)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if len(choices) > 0 {
		msg.ReplyMarkup = tgbotapi.NewOneTimeReplyKeyboard(layoutKeyboard(choices)...)
	} else {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	_, err = c.request(ctx, "sendMessage", msg)
	return err
}

// FetchAttachment resolves a file id through getFile and downloads the file.
func (c *Client) FetchAttachment(ctx context.Context, fileRef string) ([]byte, error) {
	if strings.TrimSpace(fileRef) == "" {
		return nil, fmt.Errorf("missing telegram file id")
	}
	resp, err := c.request(ctx, "getFile", tgbotapi.FileConfig{FileID: fileRef})
	if err != nil {
		return nil, err
	}
	var file tgbotapi.File
	if err := json.Unmarshal(resp.Result, &file); err != nil {
		return nil, fmt.Errorf("decode getFile result: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile returned no file_path")
	}
	limit := c.maxFileBytes()
	if int64(file.FileSize) > limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, file.FileSize)
	}

	// File.Link always points at api.telegram.org, so the URL is built from BaseURL.
	fileURL := c.baseURL() + "/file/bot" + c.Token + "/" + strings.TrimLeft(file.FilePath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", redactToken(err, c.Token))
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download telegram file: status %d", res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read telegram file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, limit)
	}
	return data, nil
}

func (c *Client) request(ctx context.Context, method string, cfg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if c.Token == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}

	var result *tgbotapi.APIResponse
	err := c.retryPolicy().Do(ctx, func(ctx context.Context) (reliability.Attempt, error) {
		resp, err := c.bot(ctx).Request(cfg)
		if err != nil {
			return classify(err), fmt.Errorf("telegram %s: %w", method, redactToken(err, c.Token))
		}
		result = resp
		return reliability.Attempt{}, nil
	})
	return result, err
}

// bot returns a tgbotapi handle whose requests carry ctx. It is built
// directly rather than through NewBotAPIWithClient, which calls getMe.
func (c *Client) bot(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  c.Token,
		Buffer: 100,
		Client: contextClient{ctx: ctx, http: c.httpClient()},
	}
	bot.SetAPIEndpoint(c.baseURL() + "/bot%s/%s")
	return bot
}

// contextClient binds requests to ctx; tgbotapi builds them without one.
type contextClient struct {
	ctx  context.Context
	http *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req.WithContext(c.ctx))
}

// classify marks rate limiting and server errors as retryable. A flood-control
// reply carries Telegram's retry_after hint.
func classify(err error) reliability.Attempt {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return reliability.Attempt{}
	}
	attempt := reliability.Attempt{Retryable: reliability.IsRetryableHTTPStatus(apiErr.Code)}
	if apiErr.RetryAfter > 0 {
		attempt.Retryable = true
		attempt.Wait = time.Duration(apiErr.RetryAfter) * time.Second
	}
	return attempt
}

func (c *Client) retryPolicy() reliability.Policy {
	if c.Retry.MaxAttempts <= 0 {
		return reliability.Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	}
	return c.Retry
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 30 * time.Second}
	}
	return c.HTTP
}

func (c *Client) maxFileBytes() int64 {
	if c.MaxFileBytes <= 0 {
		return DefaultMaxFileBytes
	}
	return c.MaxFileBytes
}

// layoutKeyboard keeps short labels on one row and gives long ones a row each.
func layoutKeyboard(choices []string) [][]tgbotapi.KeyboardButton {
	long := false
	for _, choice := range choices {
		if len(choice) > maxInlineLabel {
			long = true
			break
		}
	}
	if !long {
		row := make([]tgbotapi.KeyboardButton, 0, len(choices))
		for _, choice := range choices {
			row = append(row, tgbotapi.NewKeyboardButton(choice))
		}
		return [][]tgbotapi.KeyboardButton{row}
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(choices))
	for _, choice := range choices {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(choice)))
	}
	return rows
}

// redactToken strips the bot token from transport errors, which embed the
// request URL.
func redactToken(err error, token string) error {
	var uerr *url.Error
	if token == "" || !errors.As(err, &uerr) {
		return err
	}
	return errors.New(policy.RedactSecrets(uerr.Error(), token))
}
