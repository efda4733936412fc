package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseRecordType(t *testing.T) {
	cases := []struct {
		in  string
		out RecordType
		ok  bool
	}{
		{"expenses", Expenses, true},
		{"Expense", Expenses, true},
		{"income", Income, true},
		{" INCOME ", Income, true},
		{"transfers", "", false},
		{"", "", false},
	}
	for i, tc := range cases {
		got, err := ParseRecordType(tc.in)
		if tc.ok && (err != nil || got != tc.out) {
			t.Fatalf("case %d expected %q, got %q (err=%v)", i, tc.out, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidType) {
			t.Fatalf("case %d expected ErrInvalidType, got %v", i, err)
		}
	}
}

func TestValidateAmount(t *testing.T) {
	if err := ValidateAmount(0); err != nil {
		t.Fatalf("expected ok for zero, got %v", err)
	}
	for _, v := range []float64{-0.01, math.NaN(), math.Inf(1)} {
		if err := ValidateAmount(v); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%v expected ErrInvalidAmount, got %v", v, err)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	cases := []struct {
		in        string
		iso       string
		local     string
		expectErr bool
	}{
		{"2024-03-01", "2024-02-29T21:00:00.000Z", "2024-03-01", false},
		{"2024-03-01T23:30:00Z", "2024-03-01T23:30:00.000Z", "2024-03-01", false},
		{"2024-03-01T10:15", "2024-03-01T07:15:00.000Z", "2024-03-01", false},
		{"yesterday", "", "", true},
		{"", "", "", true},
	}
	for _, tc := range cases {
		iso, local, err := NormalizeDate(tc.in, loc)
		if tc.expectErr {
			if !errors.Is(err, ErrInvalidDate) {
				t.Fatalf("%q expected ErrInvalidDate, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q unexpected error: %v", tc.in, err)
		}
		if iso != tc.iso || local != tc.local {
			t.Fatalf("%q got (%s, %s), want (%s, %s)", tc.in, iso, local, tc.iso, tc.local)
		}
	}
}

func TestNormalizeLookup(t *testing.T) {
	if got := NormalizeLookup("  eur ", true); got != "EUR" {
		t.Fatalf("expected EUR, got %q", got)
	}
	if got := NormalizeLookup(" Food ", false); got != "Food" {
		t.Fatalf("expected Food, got %q", got)
	}
	long := strings.Repeat("é", MaxLookupLength+20)
	if got := NormalizeLookup(long, false); len([]rune(got)) != MaxLookupLength {
		t.Fatalf("expected %d runes, got %d", MaxLookupLength, len([]rune(got)))
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("add category: %w", Conflict(CodeCategoryExists, "category already exists"))
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", KindOf(err))
	}
	if CodeOf(err) != CodeCategoryExists {
		t.Fatalf("expected %s, got %s", CodeCategoryExists, CodeOf(err))
	}
	if CodeOf(errors.New("boom")) != "internal_error" {
		t.Fatalf("expected internal_error for plain errors")
	}

	cause := errors.New("dial tcp: refused")
	up := Upstream(CodeBackupCreateFailed, "sink unreachable", cause)
	if !errors.Is(up, cause) {
		t.Fatalf("expected upstream error to unwrap to its cause")
	}
	if up.Error() != "sink unreachable: dial tcp: refused" {
		t.Fatalf("unexpected message %q", up.Error())
	}
}
