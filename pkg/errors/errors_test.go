package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWithDetailDoesNotMutatePredefined(t *testing.T) {
	e := ErrUnsupportedModel.WithDetail("openai: claude-3-opus")
	if ErrUnsupportedModel.Detail != "" {
		t.Fatalf("predefined error mutated: %q", ErrUnsupportedModel.Detail)
	}
	if e.Detail != "openai: claude-3-opus" {
		t.Fatalf("detail = %q", e.Detail)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("select: %w", ErrNoProviderAvailable.WithDetail("model=claude-3-opus"))
	if !stderrors.Is(wrapped, ErrNoProviderAvailable) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(wrapped, ErrProviderDisabled) {
		t.Fatal("different codes must not match")
	}
}

func TestIsConfiguration(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ErrNoProviderAvailable, true},
		{ErrProviderDisabled.WithError(stderrors.New("missing key")), true},
		{fmt.Errorf("wrap: %w", ErrUnsupportedModel), true},
		{ErrLLMCallFailed, false},
		{stderrors.New("ECONNRESET"), false},
		{nil, false},
	}
	for i, tc := range cases {
		if got := IsConfiguration(tc.err); got != tc.want {
			t.Errorf("case %d: IsConfiguration(%v) = %v, want %v", i, tc.err, got, tc.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	if ErrInsufficientCredits.HTTPStatus != http.StatusPaymentRequired {
		t.Fatalf("insufficient credits status = %d", ErrInsufficientCredits.HTTPStatus)
	}
	if ErrRateLimited.HTTPStatus != http.StatusTooManyRequests {
		t.Fatalf("rate limited status = %d", ErrRateLimited.HTTPStatus)
	}
	if AsAppError(stderrors.New("x")).Code != CodeUnknown {
		t.Fatal("plain errors should map to CodeUnknown")
	}
}
