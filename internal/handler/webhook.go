package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showbook-chat/internal/bot"
	"github.com/iliyamo/showbook-chat/internal/whatsapp"
)

// maxWebhookBody bounds the payload read from Meta.
const maxWebhookBody = 1 << 20

// Dispatcher handles one classified inbound message.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev bot.Event)
}

// WebhookHandler receives WhatsApp Cloud API callbacks.  Deliveries are
// acknowledged before any work is done; the messages are then processed in
// the background under a fresh context, since the request context ends
// with the response.
type WebhookHandler struct {
	verifyToken string
	bot         Dispatcher
	timeout     time.Duration
	log         *slog.Logger
	wg          sync.WaitGroup
}

func NewWebhookHandler(verifyToken string, d Dispatcher, timeout time.Duration, logger *slog.Logger) *WebhookHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{verifyToken: verifyToken, bot: d, timeout: timeout, log: logger.With("component", "webhook")}
}

// Verify handles GET /webhook, the subscription handshake.  It echoes
// hub.challenge when hub.verify_token matches the configured token.
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")
	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		h.log.Info("webhook verified")
		return c.String(http.StatusOK, challenge)
	}
	h.log.Warn("webhook verification rejected", "mode", mode)
	return c.JSON(http.StatusForbidden, echo.Map{"error": "verification failed"})
}

// Receive handles POST /webhook.  It always answers 200 so Meta does not
// redeliver; payloads that cannot be parsed are logged and dropped.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.log.Warn("read webhook body failed", "error", err)
		return c.NoContent(http.StatusOK)
	}
	msgs, err := whatsapp.ParseWebhook(body)
	if err != nil {
		h.log.Warn("unparseable webhook payload", "error", err)
		return c.NoContent(http.StatusOK)
	}
	if len(msgs) > 0 {
		h.wg.Add(1)
		go h.process(msgs)
	}
	return c.NoContent(http.StatusOK)
}

func (h *WebhookHandler) process(msgs []whatsapp.Inbound) {
	defer h.wg.Done()
	for _, in := range msgs {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		h.bot.Dispatch(ctx, bot.ParseEvent(in.ID, in.From, in.Text, in.ReplyID))
		cancel()
	}
}

// Wait blocks until every message received so far has been processed.
func (h *WebhookHandler) Wait() {
	h.wg.Wait()
}
