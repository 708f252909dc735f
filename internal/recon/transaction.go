package recon

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Source identifies which ledger a transaction came from.
type Source string

const (
	SourceERP  Source = "ERP"
	SourceBank Source = "BANK"
)

// Transaction is one normalized financial entry. Amounts are signed and held
// in currency minor units (cents) to avoid floating-point drift. The id is
// assigned at normalization and is immutable for the lifetime of a run.
type Transaction struct {
	Source      Source    `json:"source"`
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Amount      int64     `json:"amount"` // minor units
	Description string    `json:"description"`
	Reference   string    `json:"reference,omitempty"`
}

// InvalidTransactionError reports a record that fails input validation. The
// whole run is rejected before any matching begins; there are no partial runs
// on malformed input.
type InvalidTransactionError struct {
	TransactionID string
	Source        Source
	Field         string
	Reason        string
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction %q (%s): field %s: %s", e.TransactionID, e.Source, e.Field, e.Reason)
}

// Validate checks the required fields of a single transaction against the
// expected source pool.
func (t *Transaction) Validate(expected Source) error {
	if t.ID == "" {
		return &InvalidTransactionError{Source: t.Source, Field: "id", Reason: "missing"}
	}
	if t.Source != SourceERP && t.Source != SourceBank {
		return &InvalidTransactionError{TransactionID: t.ID, Source: t.Source, Field: "source", Reason: fmt.Sprintf("unknown source %q", t.Source)}
	}
	if t.Source != expected {
		return &InvalidTransactionError{TransactionID: t.ID, Source: t.Source, Field: "source", Reason: fmt.Sprintf("expected %s pool", expected)}
	}
	if t.Date.IsZero() {
		return &InvalidTransactionError{TransactionID: t.ID, Source: t.Source, Field: "date", Reason: "missing"}
	}
	return nil
}

// validatePool validates every transaction in one source pool and enforces id
// uniqueness within the source.
func validatePool(expected Source, txs []Transaction) error {
	seen := make(map[string]struct{}, len(txs))
	for i := range txs {
		if err := txs[i].Validate(expected); err != nil {
			return err
		}
		if _, dup := seen[txs[i].ID]; dup {
			return &InvalidTransactionError{TransactionID: txs[i].ID, Source: expected, Field: "id", Reason: "duplicate id within source"}
		}
		seen[txs[i].ID] = struct{}{}
	}
	return nil
}

// ParseAmount converts a decimal string such as "100.00" or "-3.5" into
// minor units. It rejects non-finite and malformed values.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite amount %q", s)
	}
	return int64(math.Round(f * 100)), nil
}

// FormatAmount renders minor units back as a decimal string.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// ParseDate parses a normalized calendar date (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q: %w", s, err)
	}
	return d, nil
}

// dateKey normalizes a timestamp to its UTC calendar date. The engine has no
// time-of-day semantics.
func dateKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dateDeltaDays returns the absolute whole-day distance between two dates.
func dateDeltaDays(a, b time.Time) int {
	d := dateKey(a).Sub(dateKey(b))
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

// amountDelta returns the absolute difference between two minor-unit amounts.
func amountDelta(a, b int64) int64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d
}

// referencesEqual compares external references case-insensitively; empty
// references never match anything.
func referencesEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
