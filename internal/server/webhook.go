package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"taskbot/internal/gateway"
)

type verifyInput struct {
	Mode      string `query:"hub.mode"`
	Token     string `query:"hub.verify_token"`
	Challenge string `query:"hub.challenge"`
}

type verifyOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type receiveInput struct {
	Signature string `header:"X-Hub-Signature-256"`
}

type receiveResult struct {
	Received int `json:"received"`
	Handled  int `json:"handled"`
}

// registerWebhook mounts the WhatsApp Cloud API subscription check and the
// message receiver.
func registerWebhook(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "webhook-verify",
		Method:      http.MethodGet,
		Path:        "/webhook",
		Summary:     "Webhook subscription check",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *verifyInput) (*verifyOutput, error) {
		if input.Mode != "subscribe" || cfg.WhatsApp.VerifyToken == "" || input.Token != cfg.WhatsApp.VerifyToken {
			return nil, newAPIError(http.StatusForbidden, "verification_failed", "verification failed", nil)
		}
		return &verifyOutput{ContentType: "text/plain", Body: []byte(input.Challenge)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "webhook-receive",
		Method:      http.MethodPost,
		Path:        "/webhook",
		Summary:     "Receive inbound messages",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *receiveInput) (*struct {
		Body receiveResult `json:"body"`
	}, error) {
		raw := bodyFromContext(ctx)
		if secret := cfg.WhatsApp.AppSecret; secret != "" && !gateway.VerifySignature(secret, raw, input.Signature) {
			cfg.Log.Warn("webhook signature mismatch")
			return nil, newAPIError(http.StatusUnauthorized, "invalid_signature", "invalid signature", nil)
		}
		events, err := gateway.ParseWebhook(raw)
		if err != nil {
			return nil, handleError(err)
		}
		// Replies must go out even if the caller hangs up early.
		ctx = context.WithoutCancel(ctx)
		res := receiveResult{Received: len(events)}
		for _, in := range events {
			if cfg.Bot.Handle(ctx, in) {
				res.Handled++
			} else {
				cfg.Log.Debug("inbound event ignored", zap.String("phone", in.Sender), zap.String("type", in.Type))
			}
		}
		return &struct {
			Body receiveResult `json:"body"`
		}{Body: res}, nil
	})
}
