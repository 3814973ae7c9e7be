package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sroepkeee/orderhub-notify/internal/queue"
)

func TestWhatsAppGatewaySend(t *testing.T) {
	var gotReq sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(sendResponse{MessageID: "wamid-1"})
	}))
	defer srv.Close()

	g := NewWhatsAppGateway(srv.URL, "token-1")
	res, err := g.Send(context.Background(), "5511999990000", "ola", &queue.MediaPayload{
		Data:    []byte{0x1, 0x2},
		Caption: "nota fiscal",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if res.ProviderMessageID != "wamid-1" {
		t.Errorf("provider id = %q, want wamid-1", res.ProviderMessageID)
	}
	if gotReq.To != "5511999990000" || gotReq.Body != "ola" {
		t.Errorf("request payload = %+v", gotReq)
	}
	if gotReq.Media == "" || gotReq.Caption != "nota fiscal" {
		t.Errorf("media not forwarded: %+v", gotReq)
	}
}

func TestWhatsAppGatewayServerErrorIsChannelDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewWhatsAppGateway(srv.URL, "token-1")
	_, err := g.Send(context.Background(), "5511999990000", "ola", nil)
	if !errors.Is(err, ErrChannelDown) {
		t.Errorf("5xx response = %v, want ErrChannelDown", err)
	}
}

func TestWhatsAppGatewayUnreachableIsChannelDown(t *testing.T) {
	g := NewWhatsAppGateway("http://127.0.0.1:1", "token-1")
	_, err := g.Send(context.Background(), "5511999990000", "ola", nil)
	if !errors.Is(err, ErrChannelDown) {
		t.Errorf("transport failure = %v, want ErrChannelDown", err)
	}
}

func TestWhatsAppGatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(sendResponse{Error: "invalid recipient"})
	}))
	defer srv.Close()

	g := NewWhatsAppGateway(srv.URL, "token-1")
	_, err := g.Send(context.Background(), "not-a-number", "ola", nil)
	if err == nil {
		t.Fatal("rejection should surface as an error")
	}
	if errors.Is(err, ErrChannelDown) {
		t.Error("a per-message rejection must not look like an outage")
	}
}
