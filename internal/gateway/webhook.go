package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrInvalidPayload = errors.New("invalid webhook payload")

// ParseWebhook extracts text and button replies from a WhatsApp Cloud API
// webhook body. Statuses and unsupported message types are skipped.
func ParseWebhook(body []byte) ([]Inbound, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	var out []Inbound
	gjson.GetBytes(body, "entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			change.Get("value.messages").ForEach(func(_, m gjson.Result) bool {
				if in, ok := toInbound(m); ok {
					out = append(out, in)
				}
				return true
			})
			return true
		})
		return true
	})
	return out, nil
}

func toInbound(m gjson.Result) (Inbound, bool) {
	in := Inbound{
		Sender:    m.Get("from").String(),
		MessageID: m.Get("id").String(),
	}
	switch m.Get("type").String() {
	case "text":
		in.Type = TypeText
		in.Body = m.Get("text.body").String()
	case "interactive":
		in.Type = TypeButton
		switch m.Get("interactive.type").String() {
		case "button_reply":
			in.Body = m.Get("interactive.button_reply.id").String()
		case "list_reply":
			in.Body = m.Get("interactive.list_reply.id").String()
		}
	case "button":
		in.Type = TypeButton
		in.Body = m.Get("button.payload").String()
	default:
		return in, false
	}
	return in, in.Sender != "" && in.Body != ""
}

// VerifySignature checks an X-Hub-Signature-256 header against body.
func VerifySignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign returns the X-Hub-Signature-256 header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
