package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"driver_bot/internal/chat"
)

const defaultBaseURL = "https://api.telegram.org"

// APIError — ответ Bot API с кодом вне 2xx.
type APIError struct {
	StatusCode int
	Body       string
	// RetryAfter передается Telegram вместе с 429.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api status %d: %s", e.StatusCode, e.Body)
}

// Temporary сообщает, что запрос можно повторить.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

type responseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// retryDelay отдает паузу перед повтором; retry_after от Telegram важнее базовой.
type retryDelay struct {
	base time.Duration
	next time.Duration
}

func (d *retryDelay) NextBackOff() time.Duration {
	if d.next > 0 {
		return d.next
	}
	return d.base
}

func (d *retryDelay) Reset() {}

// Client вызывает методы Telegram Bot API.
type Client struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
	retryDelay time.Duration
	// maxRetryAfter ограничивает ожидание по retry_after; дольше запрос не повторяется.
	maxRetryAfter  time.Duration
	retryAfterUnit time.Duration
}

// NewClient создает клиент Bot API. Временные ошибки повторяются один раз.
func NewClient(botToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:        defaultBaseURL,
		botToken:       botToken,
		httpClient:     httpClient,
		retryDelay:     300 * time.Millisecond,
		maxRetryAfter:  5 * time.Second,
		retryAfterUnit: time.Second,
	}
}

// WithBaseURL переопределяет адрес Bot API.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

// SendMessage отправляет текст и возвращает ID сообщения.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *chat.Keyboard) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markup := replyMarkup(keyboard); markup != nil {
		payload["reply_markup"] = markup
	}
	var result sentMessage
	if err := c.call(ctx, "sendMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// EditMessage заменяет текст сообщения. Без инлайн-клавиатуры кнопки убираются.
func (c *Client) EditMessage(ctx context.Context, chatID, messageID int64, text string, keyboard *chat.Keyboard) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if keyboard != nil && len(keyboard.Inline) > 0 {
		payload["reply_markup"] = inlineMarkup(keyboard.Inline)
	}
	err := c.call(ctx, "editMessageText", payload, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Body, "message is not modified") {
		return nil
	}
	return err
}

// SendPhoto пересылает ранее полученное фото по file_id с подписью.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID, caption string) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"photo":   fileID,
	}
	if caption != "" {
		payload["caption"] = caption
	}
	var result sentMessage
	if err := c.call(ctx, "sendPhoto", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// AnswerCallback подтверждает нажатие кнопки всплывающим текстом.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s encode: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
	delay := &retryDelay{base: c.retryDelay}

	operation := func() (json.RawMessage, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("telegram %s request: %w", method, err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(fmt.Errorf("telegram %s: %w", method, err))
			}
			return nil, fmt.Errorf("telegram %s: %w", method, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
			var parsed apiResponse
			if json.Unmarshal(raw, &parsed) == nil && parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
				apiErr.RetryAfter = time.Duration(parsed.Parameters.RetryAfter) * c.retryAfterUnit
			}
			if !apiErr.Temporary() || !c.canWait(ctx, apiErr.RetryAfter) {
				return nil, backoff.Permanent(apiErr)
			}
			delay.next = apiErr.RetryAfter
			return nil, apiErr
		}

		var parsed apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("telegram %s decode: %w", method, err))
		}
		if !parsed.OK {
			return nil, backoff.Permanent(fmt.Errorf("telegram %s error: %s", method, parsed.Description))
		}
		return parsed.Result, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(delay),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return err
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("telegram %s decode result: %w", method, err)
	}
	return nil
}

// canWait сообщает, успеет ли повтор после паузы retry_after.
func (c *Client) canWait(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		return true
	}
	if wait > c.maxRetryAfter {
		return false
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
		return false
	}
	return true
}

func replyMarkup(keyboard *chat.Keyboard) any {
	switch {
	case keyboard == nil:
		return nil
	case len(keyboard.Inline) > 0:
		return inlineMarkup(keyboard.Inline)
	case keyboard.RequestContact != "":
		return ReplyKeyboardMarkup{
			Keyboard: [][]KeyboardButton{{{
				Text:           keyboard.RequestContact,
				RequestContact: true,
			}}},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	case keyboard.Remove:
		return ReplyKeyboardRemove{RemoveKeyboard: true}
	default:
		return nil
	}
}

func inlineMarkup(rows [][]chat.Button) InlineKeyboardMarkup {
	markup := InlineKeyboardMarkup{InlineKeyboard: make([][]InlineKeyboardButton, 0, len(rows))}
	for _, row := range rows {
		buttons := make([]InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, InlineKeyboardButton{Text: button.Label, CallbackData: button.Token})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}
