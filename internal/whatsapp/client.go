// Package whatsapp talks to the WhatsApp Cloud API: it sends text,
// interactive and image messages, and parses inbound webhook payloads.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iliyamo/showbook-chat/internal/config"
)

// Cloud API limits for interactive messages.
const (
	maxButtons        = 3
	maxButtonTitle    = 20
	maxRows           = 10
	maxRowTitle       = 24
	maxRowDescription = 72
)

type Button struct {
	ID    string
	Title string
}

// ButtonMessage is up to three reply buttons with optional header and
// footer.  Extra buttons are dropped.
type ButtonMessage struct {
	Header  string
	Body    string
	Footer  string
	Buttons []Button
}

type Row struct {
	ID          string
	Title       string
	Description string
}

type Section struct {
	Title string
	Rows  []Row
}

// ListMessage is a scrollable list opened by a button labelled Button.
type ListMessage struct {
	Header   string
	Body     string
	Footer   string
	Button   string
	Sections []Section
}

// Client sends messages from one business phone number.  Interactive and
// image messages that the API rejects are retried once as plain text, so a
// customer always receives something they can act on by typing the ids.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	log     *slog.Logger
}

func NewClient(cfg config.WhatsAppConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.APIBase + "/" + cfg.PhoneNumberID,
		token:   cfg.Token,
		log:     logger.With("component", "whatsapp"),
	}
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body},
	})
}

func (c *Client) SendImage(ctx context.Context, to, link, caption string) error {
	err := c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             map[string]any{"link": link, "caption": caption},
	})
	if err == nil {
		return nil
	}
	c.log.Warn("image send failed; falling back to text", "to", to, "error", err)
	return c.SendText(ctx, to, caption+"\n\n"+link)
}

func (c *Client) SendButtons(ctx context.Context, to string, m ButtonMessage) error {
	buttons := m.Buttons
	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	replies := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		replies = append(replies, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": b.ID, "title": truncate(b.Title, maxButtonTitle)},
		})
	}
	interactive := map[string]any{
		"type":   "button",
		"body":   map[string]any{"text": m.Body},
		"action": map[string]any{"buttons": replies},
	}
	decorate(interactive, m.Header, m.Footer)
	err := c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	})
	if err == nil {
		return nil
	}
	c.log.Warn("buttons send failed; falling back to text", "to", to, "error", err)
	return c.SendText(ctx, to, ButtonsAsText(m))
}

func (c *Client) SendList(ctx context.Context, to string, m ListMessage) error {
	sections := make([]map[string]any, 0, len(m.Sections))
	budget := maxRows
	for _, s := range m.Sections {
		rows := make([]map[string]any, 0, len(s.Rows))
		for _, r := range s.Rows {
			if budget == 0 {
				break
			}
			row := map[string]any{"id": r.ID, "title": truncate(r.Title, maxRowTitle)}
			if r.Description != "" {
				row["description"] = truncate(r.Description, maxRowDescription)
			}
			rows = append(rows, row)
			budget--
		}
		if len(rows) > 0 {
			sections = append(sections, map[string]any{"title": truncate(s.Title, maxRowTitle), "rows": rows})
		}
	}
	interactive := map[string]any{
		"type":   "list",
		"body":   map[string]any{"text": m.Body},
		"action": map[string]any{"button": truncate(m.Button, maxButtonTitle), "sections": sections},
	}
	decorate(interactive, m.Header, m.Footer)
	err := c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	})
	if err == nil {
		return nil
	}
	c.log.Warn("list send failed; falling back to text", "to", to, "error", err)
	return c.SendText(ctx, to, ListAsText(m))
}

func (c *Client) post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whatsapp: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func decorate(interactive map[string]any, header, footer string) {
	if header != "" {
		interactive["header"] = map[string]any{"type": "text", "text": header}
	}
	if footer != "" {
		interactive["footer"] = map[string]any{"text": footer}
	}
}

// ButtonsAsText renders m for clients that cannot show buttons.  Customers
// can type the listed ids instead of tapping.
func ButtonsAsText(m ButtonMessage) string {
	var b strings.Builder
	if m.Header != "" {
		b.WriteString("*" + m.Header + "*\n")
	}
	b.WriteString(m.Body)
	for _, btn := range m.Buttons {
		fmt.Fprintf(&b, "\n• %s: reply %s", btn.Title, btn.ID)
	}
	if m.Footer != "" {
		b.WriteString("\n\n_" + m.Footer + "_")
	}
	return b.String()
}

// ListAsText renders m for clients that cannot show lists.
func ListAsText(m ListMessage) string {
	var b strings.Builder
	if m.Header != "" {
		b.WriteString("*" + m.Header + "*\n")
	}
	b.WriteString(m.Body)
	for _, s := range m.Sections {
		if s.Title != "" {
			b.WriteString("\n\n" + s.Title)
		}
		for _, r := range s.Rows {
			line := "\n• " + r.Title
			if r.Description != "" {
				line += " (" + r.Description + ")"
			}
			b.WriteString(line + ": reply " + r.ID)
		}
	}
	if m.Footer != "" {
		b.WriteString("\n\n_" + m.Footer + "_")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
