package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/showbook-chat/internal/database"
	"github.com/iliyamo/showbook-chat/internal/model"
)

// PaymentRepo records payments.  The booking flow only marks bookings as
// paid; there is no gateway integration.
type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// Create inserts p and populates its ID.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO payments (booking_id, payment_ref, amount_cents, currency, gateway, status, paid_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.BookingID, p.Ref, p.AmountCents, p.Currency, p.Gateway, p.Status, dbTime(p.PaidAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}
