package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"taskbot/internal/config"
)

const webhookBody = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "1",
    "changes": [{
      "field": "messages",
      "value": {
        "messages": [
          {"from": "15550100", "id": "wamid.1", "type": "text", "text": {"body": "my tasks"}},
          {"from": "15550100", "id": "wamid.2", "type": "interactive", "interactive": {"type": "button_reply", "button_reply": {"id": "CONFIRM_TASKS", "title": "Confirm"}}},
          {"from": "15550101", "id": "wamid.3", "type": "interactive", "interactive": {"type": "list_reply", "list_reply": {"id": "SELECT_TASK:t1", "title": "x"}}},
          {"from": "15550101", "id": "wamid.4", "type": "image", "image": {"id": "img"}}
        ]
      }
    }, {
      "field": "messages",
      "value": {"statuses": [{"id": "wamid.0", "status": "read"}]}
    }]
  }]
}`

func TestParseWebhook(t *testing.T) {
	got, err := ParseWebhook([]byte(webhookBody))
	if err != nil {
		t.Fatal(err)
	}
	want := []Inbound{
		{Sender: "15550100", Type: TypeText, Body: "my tasks", MessageID: "wamid.1"},
		{Sender: "15550100", Type: TypeButton, Body: "CONFIRM_TASKS", MessageID: "wamid.2"},
		{Sender: "15550101", Type: TypeButton, Body: "SELECT_TASK:t1", MessageID: "wamid.3"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if _, err := ParseWebhook([]byte("{not json")); err != ErrInvalidPayload {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}

func TestSignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := Sign("s3cret", body)
	if !VerifySignature("s3cret", body, sig) {
		t.Fatalf("valid signature rejected")
	}
	if VerifySignature("other", body, sig) || VerifySignature("s3cret", body, "sha1=abc") {
		t.Fatalf("invalid signature accepted")
	}
}

func TestClamp(t *testing.T) {
	var buttons []Button
	for i := 0; i < 12; i++ {
		buttons = append(buttons, Button{ID: "id", Title: "a very long button title indeed", Description: strings.Repeat("d", 100)})
	}
	got := Clamp(buttons)
	if len(got) != MaxButtons {
		t.Fatalf("len = %d", len(got))
	}
	if len([]rune(got[0].Title)) != MaxTitle || len(got[0].Description) != MaxDescription {
		t.Fatalf("caps not applied: %+v", got[0])
	}
}

func TestWhatsAppPayloads(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v18.0/PHONE/messages" || r.Header.Get("Authorization") != "Bearer TOKEN" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		data, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(data, &m)
		bodies = append(bodies, m)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wa := NewWhatsApp(config.WhatsAppConfig{APIURL: srv.URL + "/v18.0", PhoneNumberID: "PHONE", AccessToken: "TOKEN"}, zaptest.NewLogger(t))
	ctx := context.Background()
	if err := wa.SendText(ctx, "1555", "hi"); err != nil {
		t.Fatal(err)
	}
	if err := wa.SendInteractive(ctx, "1555", "pick", []Button{{ID: "A", Title: "a"}, {ID: "B", Title: "b"}}); err != nil {
		t.Fatal(err)
	}
	if err := wa.SendInteractive(ctx, "1555", "pick", []Button{{ID: "A", Title: "a", Description: "due"}}); err != nil {
		t.Fatal(err)
	}
	if err := wa.MarkRead(ctx, "wamid.1"); err != nil {
		t.Fatal(err)
	}
	if len(bodies) != 4 {
		t.Fatalf("expected 4 calls, got %d", len(bodies))
	}
	if bodies[0]["type"] != "text" {
		t.Fatalf("text payload: %v", bodies[0])
	}
	if kind := bodies[1]["interactive"].(map[string]any)["type"]; kind != "button" {
		t.Fatalf("expected reply buttons, got %v", kind)
	}
	if kind := bodies[2]["interactive"].(map[string]any)["type"]; kind != "list" {
		t.Fatalf("expected list, got %v", kind)
	}
	if bodies[3]["status"] != "read" {
		t.Fatalf("mark read payload: %v", bodies[3])
	}

	unconfigured := NewWhatsApp(config.WhatsAppConfig{}, nil)
	if err := unconfigured.SendText(ctx, "1555", "hi"); err == nil {
		t.Fatalf("expected not configured error")
	}
}
