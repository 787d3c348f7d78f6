package config

import "time"

// BookingConfig tunes the conversational booking flow and its background
// reconciliation.
type BookingConfig struct {
	SeatHold          time.Duration // how long selected seats stay LOCKED awaiting payment
	ReconcileInterval time.Duration // period of the expired-hold sweep
	ReconcilerMode    string        // "ticker" (in process) or "asynq" (scheduled through Redis)
	DedupWindow       time.Duration // how long inbound event ids are remembered
	SessionTTL        time.Duration // idle lifetime of a conversation
	MaxSeats          int           // upper bound on seats per booking
	SeatPageSize      int           // seats offered per picker message
	Currency          string        // ISO currency recorded on payments
	CurrencySymbol    string        // symbol used in customer messages
}

// LoadBookingConfig reads BookingConfig from the environment.  The defaults
// hold seats for ten minutes and sweep once a minute.
func LoadBookingConfig() BookingConfig {
	c := BookingConfig{
		SeatHold:          envDur("SEAT_HOLD_DURATION", 10*time.Minute),
		ReconcileInterval: envDur("RECONCILE_INTERVAL", time.Minute),
		ReconcilerMode:    envStr("RECONCILER_MODE", "ticker"),
		DedupWindow:       envDur("DEDUP_WINDOW", time.Minute),
		SessionTTL:        envDur("SESSION_TTL", time.Hour),
		MaxSeats:          envInt("MAX_SEATS_PER_BOOKING", 5),
		SeatPageSize:      envInt("SEAT_PICKER_PAGE_SIZE", 10),
		Currency:          envStr("CURRENCY", "INR"),
		CurrencySymbol:    envStr("CURRENCY_SYMBOL", "₹"),
	}
	if c.SeatHold <= 0 {
		c.SeatHold = 10 * time.Minute
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = time.Minute
	}
	if c.MaxSeats < 1 {
		c.MaxSeats = 1
	}
	// list messages carry at most ten rows
	if c.SeatPageSize < 1 || c.SeatPageSize > 10 {
		c.SeatPageSize = 10
	}
	return c
}
