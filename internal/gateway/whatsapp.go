package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskbot/internal/config"
)

// WhatsApp sends messages through the WhatsApp Cloud API.
type WhatsApp struct {
	cfg    config.WhatsAppConfig
	client *http.Client
	log    *zap.Logger
}

func NewWhatsApp(cfg config.WhatsAppConfig, log *zap.Logger) *WhatsApp {
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = "https://graph.facebook.com/v18.0"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WhatsApp{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}, log: log}
}

// Configured reports whether the phone number id and token are present.
func (w *WhatsApp) Configured() bool {
	return strings.TrimSpace(w.cfg.PhoneNumberID) != "" && strings.TrimSpace(w.cfg.AccessToken) != ""
}

func (w *WhatsApp) SendText(ctx context.Context, to, body string) error {
	return w.call(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"preview_url": false, "body": body},
	})
}

// SendInteractive uses reply buttons for up to three plain choices and a list
// message otherwise.
func (w *WhatsApp) SendInteractive(ctx context.Context, to, body string, buttons []Button) error {
	buttons = Clamp(buttons)
	if len(buttons) == 0 {
		return w.SendText(ctx, to, body)
	}
	body = Truncate(body, MaxBody)
	var interactive map[string]any
	if len(buttons) <= MaxReplyButtons && !hasDescriptions(buttons) {
		replies := make([]map[string]any, 0, len(buttons))
		for _, b := range buttons {
			replies = append(replies, map[string]any{
				"type":  "reply",
				"reply": map[string]any{"id": b.ID, "title": b.Title},
			})
		}
		interactive = map[string]any{
			"type":   "button",
			"body":   map[string]any{"text": body},
			"action": map[string]any{"buttons": replies},
		}
	} else {
		rows := make([]map[string]any, 0, len(buttons))
		for _, b := range buttons {
			row := map[string]any{"id": b.ID, "title": b.Title}
			if b.Description != "" {
				row["description"] = b.Description
			}
			rows = append(rows, row)
		}
		interactive = map[string]any{
			"type": "list",
			"body": map[string]any{"text": body},
			"action": map[string]any{
				"button":   "Select",
				"sections": []map[string]any{{"title": "Options", "rows": rows}},
			},
		}
	}
	return w.call(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	})
}

func (w *WhatsApp) MarkRead(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}
	return w.call(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
}

func (w *WhatsApp) call(ctx context.Context, payload any) error {
	if !w.Configured() {
		return fmt.Errorf("whatsapp gateway not configured")
	}
	url := strings.TrimRight(w.cfg.APIURL, "/") + "/" + w.cfg.PhoneNumberID + "/messages"
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	w.log.Debug("whatsapp call ok", zap.Int("status", resp.StatusCode))
	return nil
}

func hasDescriptions(buttons []Button) bool {
	for _, b := range buttons {
		if b.Description != "" {
			return true
		}
	}
	return false
}
