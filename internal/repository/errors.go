// Package repository implements MySQL persistence for shows, seat
// inventory, bookings, payments, cancellations and the booking audit log.
// Every repository resolves its connection through database.Conn so that
// calls made inside database.Transactor.WithTx join the caller's
// transaction.
package repository

import "errors"

// ErrShowNotFound indicates that a show was not located in the DB.
var ErrShowNotFound = errors.New("show not found")

// ErrCategoryNotFound indicates that a seat category does not exist for the
// requested show.
var ErrCategoryNotFound = errors.New("seat category not found")

// ErrBookingNotFound indicates that a booking was not located in the DB.
var ErrBookingNotFound = errors.New("booking not found")

// ErrConflict is returned when a conditional update matched no row because
// the record is no longer in the expected state (for example confirming a
// booking that has already expired).
var ErrConflict = errors.New("conflict")
