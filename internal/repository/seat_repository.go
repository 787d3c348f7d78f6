package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/showbook-chat/internal/database"
	"github.com/iliyamo/showbook-chat/internal/model"
)

// SeatRepo manages seat inventory.  All status transitions are conditional
// UPDATE statements (compare-and-set on status) so that two instances racing
// on the same seat cannot both win; none of them read a status and write it
// back.
type SeatRepo struct {
	db *sql.DB
}

func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

const seatColumns = `id, show_id, category_id, row_label, seat_number, seat_code, status, locked_until`

// AvailabilityByCategory lists the categories of a show with their live
// number of AVAILABLE seats, most expensive first.
func (r *SeatRepo) AvailabilityByCategory(ctx context.Context, showID uint64) ([]model.CategoryAvailability, error) {
	const q = `SELECT c.id, c.show_id, c.name, c.price_cents, COUNT(s.id)
	           FROM seat_categories c
	           LEFT JOIN seats s ON s.category_id = c.id AND s.status = 'AVAILABLE'
	           WHERE c.show_id = ?
	           GROUP BY c.id, c.show_id, c.name, c.price_cents
	           ORDER BY c.price_cents DESC, c.id`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CategoryAvailability
	for rows.Next() {
		var ca model.CategoryAvailability
		if err := rows.Scan(&ca.ID, &ca.ShowID, &ca.Name, &ca.PriceCents, &ca.Available); err != nil {
			return nil, err
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

// GetCategory returns a category of the given show.
func (r *SeatRepo) GetCategory(ctx context.Context, showID, categoryID uint64) (*model.SeatCategory, error) {
	var c model.SeatCategory
	err := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, show_id, name, price_cents FROM seat_categories WHERE id = ? AND show_id = ?`,
		categoryID, showID,
	).Scan(&c.ID, &c.ShowID, &c.Name, &c.PriceCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListAvailable returns up to limit AVAILABLE seats of a category ordered by
// row then number, skipping the codes in exclude.
func (r *SeatRepo) ListAvailable(ctx context.Context, showID, categoryID uint64, exclude []string, limit int) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats
	      WHERE show_id = ? AND category_id = ? AND status = 'AVAILABLE'`
	args := []any{showID, categoryID}
	if len(exclude) > 0 {
		q += ` AND seat_code NOT IN (` + placeholders(len(exclude)) + `)`
		args = strArgs(exclude, args...)
	}
	q += ` ORDER BY row_label, seat_number LIMIT ?`
	args = append(args, limit)
	return r.query(ctx, q, args...)
}

// FindByCodes returns the seats of a show with the given codes.  Unknown
// codes are silently absent from the result.
func (r *SeatRepo) FindByCodes(ctx context.Context, showID uint64, codes []string) ([]model.Seat, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	q := `SELECT ` + seatColumns + ` FROM seats
	      WHERE show_id = ? AND seat_code IN (` + placeholders(len(codes)) + `)
	      ORDER BY row_label, seat_number`
	return r.query(ctx, q, strArgs(codes, showID)...)
}

func (r *SeatRepo) query(ctx context.Context, q string, args ...any) ([]model.Seat, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var (
			s           model.Seat
			lockedUntil sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.ShowID, &s.CategoryID, &s.RowLabel, &s.SeatNumber, &s.Code, &s.Status, &lockedUntil); err != nil {
			return nil, err
		}
		s.LockedUntil = nullTimePtr(lockedUntil)
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// LockSeats moves each AVAILABLE seat to LOCKED until the given time and
// returns the ids that were locked.  Each seat is its own compare-and-set,
// so ids missing from the result were not AVAILABLE at the moment of the
// update.
func (r *SeatRepo) LockSeats(ctx context.Context, ids []uint64, until time.Time) ([]uint64, error) {
	conn := database.Conn(ctx, r.db)
	locked := make([]uint64, 0, len(ids))
	for _, id := range ids {
		res, err := conn.ExecContext(ctx,
			`UPDATE seats SET status = 'LOCKED', locked_until = ? WHERE id = ? AND status = 'AVAILABLE'`,
			dbTime(until), id)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if n == 1 {
			locked = append(locked, id)
		}
	}
	return locked, nil
}

// CommitSeats moves seats that are LOCKED with a hold still in the future to
// BOOKED and reports how many moved.
func (r *SeatRepo) CommitSeats(ctx context.Context, ids []uint64, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE seats SET status = 'BOOKED', locked_until = NULL
	      WHERE status = 'LOCKED' AND locked_until > ? AND id IN (` + placeholders(len(ids)) + `)`
	return r.exec(ctx, q, idArgs(ids, dbTime(now))...)
}

// ReleaseSeats moves LOCKED or BOOKED seats back to AVAILABLE.
func (r *SeatRepo) ReleaseSeats(ctx context.Context, ids []uint64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE seats SET status = 'AVAILABLE', locked_until = NULL
	      WHERE status IN ('LOCKED', 'BOOKED') AND id IN (` + placeholders(len(ids)) + `)`
	return r.exec(ctx, q, idArgs(ids)...)
}

// ReleaseHeldSeats returns seats to AVAILABLE only while they are still
// LOCKED with the given deadline and that deadline is after now.  A seat
// whose lock lapsed, or that another booking has locked since, is left
// alone.
func (r *SeatRepo) ReleaseHeldSeats(ctx context.Context, ids []uint64, until, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `UPDATE seats SET status = 'AVAILABLE', locked_until = NULL
	      WHERE status = 'LOCKED' AND locked_until = ? AND locked_until > ? AND id IN (` + placeholders(len(ids)) + `)`
	return r.exec(ctx, q, idArgs(ids, dbTime(until), dbTime(now))...)
}

// CountFreshLocks counts the given seats that are LOCKED with a hold ending
// after now.
func (r *SeatRepo) CountFreshLocks(ctx context.Context, ids []uint64, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	q := `SELECT COUNT(*) FROM seats
	      WHERE status = 'LOCKED' AND locked_until > ? AND id IN (` + placeholders(len(ids)) + `)`
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, idArgs(ids, dbTime(now))...).Scan(&n)
	return n, err
}

// ReleaseExpiredLocks returns every seat whose hold ended at or before now
// to AVAILABLE and reports the released ids.  A seat that was re-locked
// between the scan and its update is left alone.
func (r *SeatRepo) ReleaseExpiredLocks(ctx context.Context, now time.Time) ([]uint64, error) {
	conn := database.Conn(ctx, r.db)
	rows, err := conn.QueryContext(ctx,
		`SELECT id FROM seats WHERE status = 'LOCKED' AND locked_until <= ?`, dbTime(now))
	if err != nil {
		return nil, err
	}
	var candidates []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	released := make([]uint64, 0, len(candidates))
	for _, id := range candidates {
		res, err := conn.ExecContext(ctx,
			`UPDATE seats SET status = 'AVAILABLE', locked_until = NULL
			 WHERE id = ? AND status = 'LOCKED' AND locked_until <= ?`, id, dbTime(now))
		if err != nil {
			return released, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return released, err
		}
		if n == 1 {
			released = append(released, id)
		}
	}
	return released, nil
}

func (r *SeatRepo) exec(ctx context.Context, q string, args ...any) (int, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
