package model

import "time"

// Seat status values. LockedUntil is set only while a seat is LOCKED.
const (
	SeatAvailable = "AVAILABLE"
	SeatLocked    = "LOCKED"
	SeatBooked    = "BOOKED"
	SeatBlocked   = "BLOCKED"
)

// SeatCategory groups seats of a show under one price.
type SeatCategory struct {
	ID         uint64 // seat_categories.id
	ShowID     uint64 // seat_categories.show_id
	Name       string // seat_categories.name
	PriceCents int64  // seat_categories.price_cents
}

// CategoryAvailability is a category together with its live count of
// AVAILABLE seats.
type CategoryAvailability struct {
	SeatCategory
	Available int
}

// Seat is one physical seat of a show.
//
// Fields:
//  Code        – row label followed by the seat number, e.g. "B7".
//  Status      – AVAILABLE, LOCKED, BOOKED or BLOCKED.
//  LockedUntil – end of the current hold; nil unless Status is LOCKED.
type Seat struct {
	ID          uint64     // seats.id
	ShowID      uint64     // seats.show_id
	CategoryID  uint64     // seats.category_id
	RowLabel    string     // seats.row_label
	SeatNumber  int        // seats.seat_number
	Code        string     // seats.seat_code
	Status      string     // seats.status
	LockedUntil *time.Time // seats.locked_until (nullable)
}
