package domain

import "errors"

// ErrInsufficientWindow is reported by factors when a window has fewer bars
// than the factor's minimum lookback or too many gaps. Callers treat it as
// "factor unavailable", never as a pass-fatal error.
var ErrInsufficientWindow = errors.New("insufficient price window")

// ErrStaleQuote marks a quote older than the configured staleness threshold.
// Stale quotes stay usable for screening but are excluded from signal
// triggering.
var ErrStaleQuote = errors.New("stale quote")
