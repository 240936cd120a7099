package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"statusbot/internal/watch"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	if got := splitTelegramText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text = %q", got)
	}

	lines := strings.Repeat("abcdefgh\n", 5) // 45 runes
	got := splitTelegramText(lines, 20)
	for _, c := range got {
		if len([]rune(c)) > 20 {
			t.Fatalf("chunk %q exceeds limit", c)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %q keeps boundary newlines", c)
		}
	}
	if joined := strings.Join(got, "\n"); joined != strings.TrimRight(lines, "\n") {
		t.Fatalf("rejoined = %q", joined)
	}

	// No newline: hard split on rune count, multi-byte safe.
	long := strings.Repeat("ж", 25)
	got = splitTelegramText(long, 10)
	if len(got) != 3 || len([]rune(got[2])) != 5 {
		t.Fatalf("hard split = %q", got)
	}
}

type botAPI struct {
	mu    sync.Mutex
	calls []map[string]any
	fail  bool
}

func (b *botAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/botTOKEN/sendMessage") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		b.mu.Lock()
		b.calls = append(b.calls, body)
		fail := b.fail
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":42,"type":"private"},"text":"x"}}`, len(b.calls))
	})
}

func newTestNotifier(t *testing.T, api *botAPI) *Notifier {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	n, err := New(Config{Token: "TOKEN", ChatID: 42, ThreadID: 9, RatePerSec: 1000, APIURL: srv.URL, Client: srv.Client()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return n
}

func TestDeliverSendsToChat(t *testing.T) {
	t.Parallel()
	api := &botAPI{}
	n := newTestNotifier(t, api)

	if err := n.Deliver(context.Background(), `Status of "task1" changed. ok`); err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(api.calls))
	}
	call := api.calls[0]
	if fmt.Sprint(call["chat_id"]) != "42" || fmt.Sprint(call["message_thread_id"]) != "9" {
		t.Fatalf("call = %v", call)
	}
	if call["text"] != `Status of "task1" changed. ok` {
		t.Fatalf("text = %v", call["text"])
	}
}

func TestDeliverSplitsLongText(t *testing.T) {
	t.Parallel()
	api := &botAPI{}
	n := newTestNotifier(t, api)

	text := strings.Repeat("line of a long diagnostic\n", 400) // > 4000 runes
	if err := n.Deliver(context.Background(), text); err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.calls) < 3 {
		t.Fatalf("calls = %d, want the text split into several messages", len(api.calls))
	}
}

func TestDeliverFailureIsDeliveryError(t *testing.T) {
	t.Parallel()
	api := &botAPI{fail: true}
	n := newTestNotifier(t, api)

	err := n.Deliver(context.Background(), "hello")
	if !watch.IsKind(err, watch.DeliveryError) {
		t.Fatalf("err = %v, want DeliveryError", err)
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err %q lost the API description", err)
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{ChatID: 1}); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := New(Config{Token: "x"}); err == nil {
		t.Fatal("expected error for empty chat id")
	}
}
