package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/showbook-chat/internal/database"
	"github.com/iliyamo/showbook-chat/internal/model"
)

// ShowRepo reads shows.  Show administration is handled elsewhere; the
// booking flow only resolves shows by keyword or id.
type ShowRepo struct {
	db *sql.DB
}

func NewShowRepo(db *sql.DB) *ShowRepo { return &ShowRepo{db: db} }

const showColumns = `id, keyword, title, description, venue, city, starts_at, poster_url,
	status, cancellation_allowed, refund_slabs, created_at, updated_at`

// GetByKeyword returns the show whose entry keyword matches exactly.
// Keywords are stored upper case.
func (r *ShowRepo) GetByKeyword(ctx context.Context, keyword string) (*model.Show, error) {
	row := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+showColumns+` FROM shows WHERE keyword = ?`, keyword)
	return scanShow(row)
}

// GetByID returns the show with the given id.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	row := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+showColumns+` FROM shows WHERE id = ?`, id)
	return scanShow(row)
}

func scanShow(row rowScanner) (*model.Show, error) {
	var (
		s           model.Show
		description sql.NullString
		poster      sql.NullString
		slabs       []byte
	)
	err := row.Scan(&s.ID, &s.Keyword, &s.Title, &description, &s.Venue, &s.City, &s.StartsAt,
		&poster, &s.Status, &s.CancellationAllowed, &slabs, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShowNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Description = description.String
	s.PosterURL = poster.String
	s.StartsAt = s.StartsAt.UTC()
	if len(slabs) > 0 {
		if err := json.Unmarshal(slabs, &s.RefundSlabs); err != nil {
			return nil, fmt.Errorf("show %d: decode refund slabs: %w", s.ID, err)
		}
	}
	return &s, nil
}
