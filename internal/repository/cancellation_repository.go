package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/showbook-chat/internal/database"
	"github.com/iliyamo/showbook-chat/internal/model"
)

// CancellationRepo records cancellations and their refund outcome.
type CancellationRepo struct {
	db *sql.DB
}

func NewCancellationRepo(db *sql.DB) *CancellationRepo { return &CancellationRepo{db: db} }

// Create inserts c and populates its ID.
func (r *CancellationRepo) Create(ctx context.Context, c *model.Cancellation) error {
	seats, err := json.Marshal(c.SeatCodes)
	if err != nil {
		return err
	}
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO cancellations (booking_id, seat_codes, refund_percent, refund_cents, hours_before_show, refund_status, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.BookingID, seats, c.RefundPercent, c.RefundCents, c.HoursBeforeShow, c.RefundStatus, c.Reason)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}
