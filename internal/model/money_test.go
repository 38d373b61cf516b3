package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"whole number", "99.00", "99"},
		{"with cents", "123.45", "123.45"},
		{"zero", "0.00", "0"},
		{"empty string", "", "0"},
		{"no decimals", "100", "100"},
		{"small value", "0.01", "0.01"},
		{"invalid string", "abc", "0"},
		{"negative (unusual)", "-10.00", "-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(tt.input)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParsePrice(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"whole number", "99.00", 9900},
		{"with cents", "123.45", 12345},
		{"zero", "0", 0},
		{"rounds half up", "1234.565", 123457},
		{"rounds down", "0.014", 1},
		{"large value", "1234567.89", 123456789},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinorUnits(decimal.RequireFromString(tt.input))
			if got != tt.want {
				t.Errorf("MinorUnits(%s) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	got := FromMinorUnits(12345)
	if !got.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("FromMinorUnits(12345) = %s, want 123.45", got)
	}
}

func TestLineTotal(t *testing.T) {
	got := LineTotal(decimal.RequireFromString("19.99"), 3)
	if !got.Equal(decimal.RequireFromString("59.97")) {
		t.Errorf("LineTotal = %s, want 59.97", got)
	}
}
