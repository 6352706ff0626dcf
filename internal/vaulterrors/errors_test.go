package vaulterrors

import (
	"errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", New(KindValidation, "bad input"), KindValidation},
		{"wrapped not found", Wrap(KindNotFound, "lookup failed", errors.New("sql: no rows")), KindNotFound},
		{"plain stdlib error", errors.New("boom"), KindUnknown},
		{"sentinel not found", ErrVaultNotFound, KindNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := Wrap(KindTransientIO, "dial tcp", errors.New("connection refused"))
	if !Is(err, KindTransientIO) {
		t.Error("expected KindTransientIO")
	}
	if Is(err, KindFatalConfig) {
		t.Error("did not expect KindFatalConfig")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindParse, "decode failed", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}
