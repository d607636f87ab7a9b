package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseSignedDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"-12.50", -1250, true},
		{"0", 0, true},
		{"+3", 300, true},
		{"12,345", 1235, true},
		{"-", 0, false},
		{"--1", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseSignedDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyDecimalRoundTrip(t *testing.T) {
	m := Money{Cents: 12034}
	if got := m.String(); got != "120.34" {
		t.Fatalf("String() = %q", got)
	}
	if got := MoneyFromDecimal(m.Decimal()); got != m {
		t.Fatalf("round trip = %v", got)
	}
	if got := (Money{Cents: -5}).String(); got != "-0.05" {
		t.Fatalf("negative String() = %q", got)
	}
}

func TestMoneyFromDecimalRounding(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"8.333333", 833},
		{"0.005", 1},
		{"-0.005", -1},
		{"37", 3700},
	}
	for _, tc := range cases {
		if got := MoneyFromDecimal(decimal.RequireFromString(tc.in)); got.Cents != tc.want {
			t.Errorf("MoneyFromDecimal(%s) = %d, want %d", tc.in, got.Cents, tc.want)
		}
	}
}

func TestPercent(t *testing.T) {
	got := Percent(decimal.NewFromInt(100), decimal.NewFromInt(37))
	if !got.Equal(decimal.NewFromInt(37)) {
		t.Fatalf("Percent = %s", got)
	}
}
