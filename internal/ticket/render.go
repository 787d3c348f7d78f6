package ticket

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/iliyamo/showbook-chat/internal/config"
	"github.com/iliyamo/showbook-chat/internal/model"
)

// Renderer turns a payload into a scannable image reachable at the
// returned URL.  It must fail rather than return an unusable URL.
type Renderer interface {
	Render(ctx context.Context, payload string) (string, error)
}

// QRRenderer writes PNG QR codes into a directory that the HTTP server
// exposes under /qr.
type QRRenderer struct {
	dir     string
	baseURL string
	size    int
}

func NewQRRenderer(cfg config.TicketConfig) (*QRRenderer, error) {
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("ticket: public base URL is required")
	}
	if err := os.MkdirAll(cfg.QRDir, 0o755); err != nil {
		return nil, fmt.Errorf("ticket: create %s: %w", cfg.QRDir, err)
	}
	return &QRRenderer{dir: cfg.QRDir, baseURL: cfg.PublicBaseURL, size: cfg.QRSize}, nil
}

func (r *QRRenderer) Render(ctx context.Context, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if payload == "" {
		return "", fmt.Errorf("ticket: empty payload")
	}
	name := uuid.NewString() + ".png"
	if err := qrcode.WriteFile(payload, qrcode.Medium, r.size, filepath.Join(r.dir, name)); err != nil {
		return "", fmt.Errorf("ticket: render qr: %w", err)
	}
	return r.baseURL + "/qr/" + name, nil
}

// Issuer signs a ticket for a booking and renders it.
type Issuer struct {
	signer   *Signer
	renderer Renderer
}

func NewIssuer(signer *Signer, renderer Renderer) *Issuer {
	return &Issuer{signer: signer, renderer: renderer}
}

// Issue returns the URL of a ticket covering seatCodes at b.TicketVersion.
func (i *Issuer) Issue(ctx context.Context, b *model.Booking, seatCodes []string) (string, error) {
	token, err := i.signer.Sign(Claims{
		Ref:     b.Ref,
		ShowID:  b.ShowID,
		Seats:   seatCodes,
		Version: b.TicketVersion,
	})
	if err != nil {
		return "", err
	}
	return i.renderer.Render(ctx, token)
}
