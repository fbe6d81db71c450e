package invoice

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Form field names, as submitted by the invoice form.
const (
	FieldCustomerID = "customerId"
	FieldAmount     = "amount"
	FieldStatus     = "status"
)

const (
	MsgSelectCustomer = "Please select a customer."
	MsgAmountPositive = "Please enter an amount greater than $0."
	MsgAmountInvalid  = "Please enter a valid amount."
	MsgSelectStatus   = "Please select an invoice status."
)

// Form holds the raw, untrusted values of the invoice form. A missing field
// is the empty string.
type Form struct {
	CustomerID string
	Amount     string
	Status     string
}

// Fields is a validated Form.
type Fields struct {
	CustomerID string
	Amount     decimal.Decimal
	Cents      int64
	Status     Status
}

// FieldErrors maps a form field name to its validation messages.
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

type ValidationError struct {
	Fields FieldErrors
}

func (e ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

/* Checks every field of the form and returns either the typed fields or a ValidationError listing all the failures. */
func Validate(form Form) (Fields, error) {
	errs := FieldErrors{}
	var fields Fields

	if form.CustomerID == "" {
		errs.add(FieldCustomerID, MsgSelectCustomer)
	}
	fields.CustomerID = form.CustomerID

	amount, err := coerceAmount(form.Amount)
	switch {
	case err != nil:
		errs.add(FieldAmount, MsgAmountInvalid)
	case !amount.GreaterThan(decimal.Zero):
		errs.add(FieldAmount, MsgAmountPositive)
	default:
		cents, ok := ToCents(amount)
		if !ok {
			errs.add(FieldAmount, MsgAmountInvalid)
		}
		fields.Amount = amount
		fields.Cents = cents
	}

	status := Status(form.Status)
	if !status.Valid() {
		errs.add(FieldStatus, MsgSelectStatus)
	}
	fields.Status = status

	if len(errs) > 0 {
		return Fields{}, ValidationError{Fields: errs}
	}
	return fields, nil
}

const (
	maxAmountLength = 32
	// Amounts of 10^17 or more overflow int64 cents.
	maxAmountMagnitude = 17
)

var errAmountOutOfRange = errors.New("amount out of range")

// A blank amount coerces to zero, so it is reported as not positive rather than malformed.
// The length and exponent are bounded before any arithmetic: decimal rescales
// build 10^exponent integers.
func coerceAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	if len(raw) > maxAmountLength {
		return decimal.Decimal{}, errAmountOutOfRange
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}

	exp := int64(amount.Exponent())
	coefficient := amount.Coefficient()
	digits := int64(len(coefficient.Abs(coefficient).String()))
	if exp < -maxAmountLength || exp+digits > maxAmountMagnitude {
		return decimal.Decimal{}, errAmountOutOfRange
	}
	return amount, nil
}
