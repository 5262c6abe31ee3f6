package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Investmeows/extendedbot/internal/config"

	"go.uber.org/zap"
)

func TestSendSkipsWhenDisabled(t *testing.T) {
	client := newTelegram(config.TelegramConfig{Enabled: false}, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), "basket opened"); err != nil {
		t.Fatalf("disabled send should be a no-op, got %v", err)
	}
}

func TestSendRejectsIncompleteConfig(t *testing.T) {
	cases := []config.TelegramConfig{
		{Enabled: true},
		{Enabled: true, Token: "token"},
		{Enabled: true, ChatID: "123"},
	}
	for _, cfg := range cases {
		client := newTelegram(cfg, zap.NewNop(), "http://unused", nil)
		if err := client.Send(context.Background(), "basket opened"); err == nil {
			t.Fatalf("expected error for config %+v", cfg)
		}
	}
}

func TestSendPostsToBotEndpoint(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	if err := client.Send(context.Background(), "basket opened"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/bottoken/sendMessage" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotPayload["chat_id"] != "123" || gotPayload["text"] != "basket opened" {
		t.Fatalf("unexpected payload %v", gotPayload)
	}
}

func TestSendSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	if err := client.Send(context.Background(), "basket opened"); err == nil {
		t.Fatal("expected error from ok=false response")
	}
}

func TestSendfNeverPanicsOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	client.Sendf(context.Background(), "basket %s for %s", "closed", "2026-03-02")
}
