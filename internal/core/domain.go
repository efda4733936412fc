package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const (
	Expenses RecordType = "expenses"
	Income   RecordType = "income"
)

const (
	ReasonManual BackupReason = "manual"
	ReasonAuto   BackupReason = "auto"
)

// MaxLookupLength caps category names and currency codes.
const MaxLookupLength = 100

// TimestampLayout is the fixed-width UTC layout stored in records.date, so
// that string comparison orders instants correctly.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type (
	RecordType string

	BackupReason string

	// Record is one income or expense transaction.
	Record struct {
		ID          int64      `json:"id"`
		Type        RecordType `json:"type"`
		Description string     `json:"description"`
		Category    *string    `json:"category"`
		Amount      float64    `json:"amount"`
		Currency    *string    `json:"currency"`
		Date        *string    `json:"date"`
		DateLocal   *string    `json:"dateLocal"`
		Who         *string    `json:"who"`
		USDAmount   float64    `json:"usdAmount"`
	}

	// RecordInput carries the fields accepted when creating a record.
	RecordInput struct {
		Description string  `json:"description"`
		Category    string  `json:"category"`
		Amount      float64 `json:"amount"`
		Currency    string  `json:"currency"`
		Date        string  `json:"date"`
		Who         string  `json:"who"`
	}

	// RecordPatch is a partial update. Nil fields keep their stored value;
	// a pointer to an empty string clears nullable references.
	RecordPatch struct {
		Description *string  `json:"description"`
		Category    *string  `json:"category"`
		Amount      *float64 `json:"amount"`
		Currency    *string  `json:"currency"`
		Date        *string  `json:"date"`
		Who         *string  `json:"who"`
	}

	// CurrencyList is the currencies payload served to clients.
	CurrencyList struct {
		Currencies []string           `json:"currencies"`
		Rates      map[string]float64 `json:"currencyRates"`
	}
)

var (
	ErrInvalidType   = errors.New("invalid record type")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidID     = errors.New("invalid id")
)

// ParseRecordType maps a path segment to a record type.
func ParseRecordType(s string) (RecordType, error) {
	switch RecordType(strings.ToLower(strings.TrimSpace(s))) {
	case Expenses, "expense":
		return Expenses, nil
	case Income:
		return Income, nil
	}
	return "", ErrInvalidType
}

func (t RecordType) Validate() error {
	if t != Expenses && t != Income {
		return ErrInvalidType
	}
	return nil
}

// ValidateAmount rejects negative and non-finite amounts.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (in RecordInput) Validate() error {
	if err := ValidateAmount(in.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(in.Date) != "" {
		if _, _, err := NormalizeDate(in.Date, time.Local); err != nil {
			return err
		}
	}
	return nil
}

func (p RecordPatch) Validate() error {
	if p.Amount != nil {
		if err := ValidateAmount(*p.Amount); err != nil {
			return err
		}
	}
	if p.Date != nil && strings.TrimSpace(*p.Date) != "" {
		if _, _, err := NormalizeDate(*p.Date, time.Local); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeLookup trims a category name or currency code, optionally
// upper-cases it and caps it at MaxLookupLength runes.
func NormalizeLookup(value string, upper bool) string {
	v := strings.TrimSpace(value)
	if upper {
		v = strings.ToUpper(v)
	}
	if r := []rune(v); len(r) > MaxLookupLength {
		v = string(r[:MaxLookupLength])
	}
	return v
}

// NormalizeDate turns a date or date-time string into the stored pair:
// a UTC instant and the calendar day it falls on. Input that
// starts with YYYY-MM-DD keeps that day verbatim; anything else is
// projected onto loc.
// The instant is returned in TimestampLayout.
func NormalizeDate(value string, loc *time.Location) (iso string, local string, err error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", "", ErrInvalidDate
	}
	if loc == nil {
		loc = time.Local
	}

	var t time.Time
	parsed := false
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		var perr error
		if layout == time.RFC3339Nano {
			t, perr = time.Parse(layout, v)
		} else {
			t, perr = time.ParseInLocation(layout, v, loc)
		}
		if perr == nil {
			parsed = true
			break
		}
	}
	if !parsed {
		return "", "", ErrInvalidDate
	}

	if len(v) >= 10 && isISODay(v[:10]) {
		local = v[:10]
	} else {
		local = t.In(loc).Format(time.DateOnly)
	}
	return t.UTC().Format(TimestampLayout), local, nil
}

func isISODay(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
