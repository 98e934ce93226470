package expr

import (
	"errors"
	"testing"
)

func TestEval(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1", 1},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"-3 + 5", 2},
		{"-(2 + 3)", -5},
		{"2 * -3", -6},
		{"+4", 4},
		{"1.5e2 - .5", 149.5},
		{"8 - 2 - 1", 5},
		{"16 / 4 / 2", 2},
		{"  7  ", 7},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Eval(tt.in)
			if err != nil {
				t.Fatalf("Eval(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", ErrSyntax},
		{"1 +", ErrSyntax},
		{"(1 + 2", ErrSyntax},
		{"abc", ErrSyntax},
		{"1 2", ErrSyntax},
		{"1..2", ErrSyntax},
		{"4 / 0", ErrDivisionByZero},
		{"4 / (2 - 2)", ErrDivisionByZero},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if _, err := Eval(tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Eval(%q) error = %v, want %v", tt.in, err, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		v    float64
		prec int
		want string
	}{
		{7, -1, "7"},
		{2.5, -1, "2.5"},
		{1.0 / 3, 2, "0.33"},
		{2.675, 0, "3"},
		{10, 3, "10.000"},
	}
	for _, tt := range tests {
		if got := Format(tt.v, tt.prec); got != tt.want {
			t.Errorf("Format(%v, %d) = %q, want %q", tt.v, tt.prec, got, tt.want)
		}
	}
}
