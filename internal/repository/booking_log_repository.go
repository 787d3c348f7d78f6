package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/showbook-chat/internal/database"
	"github.com/iliyamo/showbook-chat/internal/model"
)

// BookingLogRepo appends audit entries.
type BookingLogRepo struct {
	db *sql.DB
}

func NewBookingLogRepo(db *sql.DB) *BookingLogRepo { return &BookingLogRepo{db: db} }

func (r *BookingLogRepo) Append(ctx context.Context, l *model.BookingLog) error {
	var meta []byte
	if len(l.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(l.Metadata); err != nil {
			return err
		}
	}
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO booking_logs (booking_id, show_id, action, description, metadata) VALUES (?, ?, ?, ?, ?)`,
		l.BookingID, l.ShowID, l.Action, l.Description, meta)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	return nil
}
