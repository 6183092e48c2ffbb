package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
)

func TestResendPostsEmail(t *testing.T) {
	var got sendRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"em_1"}`))
	}))
	defer srv.Close()

	m := NewResend(config.Email{
		APIKey:   "re_test",
		Sender:   "bot@example.com",
		Receiver: "a@example.com, b@example.com",
		BaseURL:  srv.URL + "/",
		Timeout:  time.Second,
	}, applogger.Nop())
	if err := m.Send(context.Background(), "Report", "<p>hi</p>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer re_test" || path != "/emails" {
		t.Fatalf("auth=%q path=%q", auth, path)
	}
	if got.From != "bot@example.com" || len(got.To) != 2 || got.To[1] != "b@example.com" || got.HTML != "<p>hi</p>" {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestResendDisabled(t *testing.T) {
	m := NewResend(config.Email{BaseURL: "http://unused"}, applogger.Nop())
	if err := m.Send(context.Background(), "s", "b"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
