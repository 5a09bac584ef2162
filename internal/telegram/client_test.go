package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"driver_bot/internal/chat"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient("TOKEN", server.Client()).WithBaseURL(server.URL)
	client.retryDelay = time.Millisecond
	client.retryAfterUnit = time.Millisecond
	return client
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return payload
}

func TestClientSendMessageInlineKeyboard(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		payload = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":77}}`))
	})

	keyboard := chat.InlineRow(chat.Button{Label: "Начать проверку", Token: "start_d1"})
	id, err := client.SendMessage(context.Background(), -1001, "card", keyboard)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != 77 {
		t.Fatalf("expected message id 77, got %d", id)
	}
	markup := payload["reply_markup"].(map[string]any)
	rows := markup["inline_keyboard"].([]any)
	button := rows[0].([]any)[0].(map[string]any)
	if button["callback_data"] != "start_d1" || button["text"] != "Начать проверку" {
		t.Fatalf("unexpected button %+v", button)
	}
}

func TestClientContactAndRemoveKeyboards(t *testing.T) {
	var payloads []map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payloads = append(payloads, decodeBody(t, r))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	ctx := context.Background()
	if _, err := client.SendMessage(ctx, 1, "phone", chat.ContactRequest("Share")); err != nil {
		t.Fatalf("send contact: %v", err)
	}
	if _, err := client.SendMessage(ctx, 1, "done", chat.RemoveKeyboard()); err != nil {
		t.Fatalf("send remove: %v", err)
	}
	if _, err := client.SendMessage(ctx, 1, "plain", nil); err != nil {
		t.Fatalf("send plain: %v", err)
	}

	contact := payloads[0]["reply_markup"].(map[string]any)
	button := contact["keyboard"].([]any)[0].([]any)[0].(map[string]any)
	if button["request_contact"] != true || contact["one_time_keyboard"] != true {
		t.Fatalf("unexpected contact markup %+v", contact)
	}
	remove := payloads[1]["reply_markup"].(map[string]any)
	if remove["remove_keyboard"] != true {
		t.Fatalf("unexpected remove markup %+v", remove)
	}
	if _, ok := payloads[2]["reply_markup"]; ok {
		t.Fatalf("plain message must not carry markup")
	}
}

func TestClientRetriesTransientFailureOnce(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	})

	if err := client.AnswerCallback(context.Background(), "cb", "ok"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestClientGivesUpAfterSecondFailure(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.AnswerCallback(context.Background(), "cb", "ok")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected api error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var attempts int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	})

	_, err := client.SendMessage(context.Background(), 1, "hi", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request error, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestClientWaitsRetryAfterOnTooManyRequests(t *testing.T) {
	var attempts int32
	var first time.Time
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			first = time.Now()
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 50","parameters":{"retry_after":50}}`))
			return
		}
		if waited := time.Since(first); waited < 50*time.Millisecond {
			t.Errorf("retried after %v, expected at least retry_after", waited)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":9}}`))
	})

	if _, err := client.SendMessage(context.Background(), 1, "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestClientSkipsRetryWhenRetryAfterTooLong(t *testing.T) {
	cases := map[string]struct {
		retryAfter string
		timeout    time.Duration
	}{
		"beyond limit":    {retryAfter: "60000", timeout: 0},
		"beyond deadline": {retryAfter: "2000", timeout: 200 * time.Millisecond},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var attempts int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"parameters":{"retry_after":` + tc.retryAfter + `}}`))
			})
			ctx := context.Background()
			if tc.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tc.timeout)
				defer cancel()
			}

			start := time.Now()
			_, err := client.SendMessage(ctx, 1, "hi", nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests || apiErr.RetryAfter == 0 {
				t.Fatalf("expected 429 api error with retry_after, got %v", err)
			}
			if got := atomic.LoadInt32(&attempts); got != 1 {
				t.Fatalf("expected a single attempt, got %d", got)
			}
			if time.Since(start) > time.Second {
				t.Fatalf("client must not wait when retry is skipped")
			}
		})
	}
}

func TestClientSendPhotoByFileID(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendPhoto" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		payload = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":12}}`))
	})

	id, err := client.SendPhoto(context.Background(), 55, "FILE-1", "Фото паспорта")
	if err != nil {
		t.Fatalf("send photo: %v", err)
	}
	if id != 12 || payload["photo"] != "FILE-1" || payload["caption"] != "Фото паспорта" {
		t.Fatalf("unexpected result %d %+v", id, payload)
	}
}

func TestClientEditIgnoresNotModified(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payload = decodeBody(t, r)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: message is not modified"}`))
	})

	if err := client.EditMessage(context.Background(), -1001, 5, "card", nil); err != nil {
		t.Fatalf("expected not modified to be ignored, got %v", err)
	}
	if _, ok := payload["reply_markup"]; ok {
		t.Fatalf("final card edit must drop the inline keyboard")
	}
	if !strings.Contains(payload["text"].(string), "card") {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestClientGetUpdates(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		payload = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":10,"callback_query":{"id":"cb","from":{"id":7},"data":"lang_ru"}}]}`))
	})

	updates, err := client.GetUpdates(context.Background(), 10, 90*time.Second, 500)
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(updates) != 1 || updates[0].CallbackQuery == nil || updates[0].CallbackQuery.Data != "lang_ru" {
		t.Fatalf("unexpected updates %+v", updates)
	}
	if payload["timeout"].(float64) != 50 || payload["limit"].(float64) != 100 || payload["offset"].(float64) != 10 {
		t.Fatalf("unexpected polling payload %+v", payload)
	}
	allowed := payload["allowed_updates"].([]any)
	if len(allowed) != 2 || allowed[1] != "callback_query" {
		t.Fatalf("unexpected allowed updates %+v", allowed)
	}
}
