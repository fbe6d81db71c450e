package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingPath is the dashboard view that lists invoices. Every successful
// write invalidates it and create/update navigate back to it.
const ListingPath = "/dashboard/invoices"

// DateLayout is the calendar date format stored in the date column.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusPaid
}

type Invoice struct {
	ID         string
	CustomerID string
	Amount     int64 // minor units (cents)
	Status     Status
	Date       string
}

var hundred = decimal.NewFromInt(100)

/* Converts a decimal amount into minor units. Fractional cents are rounded half away from zero. */
func ToCents(amount decimal.Decimal) (int64, bool) {
	cents := amount.Mul(hundred).Round(0)
	big := cents.BigInt()
	if !big.IsInt64() {
		return 0, false
	}
	return big.Int64(), true
}

/* Converts minor units back to a decimal amount, used when rendering. */
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

/* Formats the calendar date of t in UTC, the way it is written to the date column. */
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
