package whatsapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Inbound is one customer message extracted from a webhook delivery.
// ReplyID is set for button and list replies; Text for typed messages.
type Inbound struct {
	ID        string
	From      string
	Text      string
	ReplyID   string
	Timestamp time.Time
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *reply `json:"button_reply"`
		ListReply   *reply `json:"list_reply"`
	} `json:"interactive"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
}

type reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ParseWebhook extracts customer messages from a WhatsApp Business webhook
// body.  Status callbacks and unsupported message types yield no Inbound.
func ParseWebhook(body []byte) ([]Inbound, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	if p.Object != "" && p.Object != "whatsapp_business_account" {
		return nil, fmt.Errorf("whatsapp: unexpected object %q", p.Object)
	}
	var out []Inbound
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			for _, m := range ch.Value.Messages {
				in := Inbound{ID: m.ID, From: m.From, Timestamp: parseUnix(m.Timestamp)}
				switch {
				case m.Interactive != nil && m.Interactive.ButtonReply != nil:
					in.ReplyID = m.Interactive.ButtonReply.ID
					in.Text = m.Interactive.ButtonReply.Title
				case m.Interactive != nil && m.Interactive.ListReply != nil:
					in.ReplyID = m.Interactive.ListReply.ID
					in.Text = m.Interactive.ListReply.Title
				case m.Button != nil:
					in.ReplyID = m.Button.Payload
					in.Text = m.Button.Text
				case m.Text != nil:
					in.Text = m.Text.Body
				default:
					continue
				}
				out = append(out, in)
			}
		}
	}
	return out, nil
}

func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
