package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// WhatsAppConfig holds the Cloud API credentials used for outbound messages
// and the verify token used by the webhook handshake.
type WhatsAppConfig struct {
	Token         string
	PhoneNumberID string
	VerifyToken   string
	APIBase       string
	Timeout       time.Duration
}

func LoadWhatsAppConfig() WhatsAppConfig {
	return WhatsAppConfig{
		Token:         envStr("WHATSAPP_TOKEN", ""),
		PhoneNumberID: envStr("WHATSAPP_PHONE_NUMBER_ID", ""),
		VerifyToken:   envStr("WHATSAPP_VERIFY_TOKEN", ""),
		APIBase:       strings.TrimRight(envStr("WHATSAPP_API_BASE", "https://graph.facebook.com/v22.0"), "/"),
		Timeout:       envDur("WHATSAPP_TIMEOUT", 10*time.Second),
	}
}

// TicketConfig controls where rendered ticket images are written and the
// public origin they are served from.
type TicketConfig struct {
	PublicBaseURL string // scheme://host[:port] only; any path is dropped
	QRDir         string
	QRSize        int
}

// LoadTicketConfig reads TicketConfig.  PUBLIC_BASE_URL is validated here
// so that a misconfigured origin fails at startup rather than on the first
// confirmed booking.
func LoadTicketConfig() (TicketConfig, error) {
	c := TicketConfig{
		QRDir:  envStr("TICKET_QR_DIR", "public/qr"),
		QRSize: envInt("TICKET_QR_SIZE", 400),
	}
	raw := envStr("PUBLIC_BASE_URL", "")
	if raw == "" {
		return c, fmt.Errorf("PUBLIC_BASE_URL is not set")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return c, fmt.Errorf("PUBLIC_BASE_URL %q is not an absolute URL", raw)
	}
	c.PublicBaseURL = u.Scheme + "://" + u.Host
	if c.QRSize < 128 {
		c.QRSize = 128
	}
	return c, nil
}
