// GO TESTING BASICS:
// Test files end in _test.go and live in the same package as the code under
// test, so unexported helpers are reachable. Run with: go test ./internal/apperror/ -v
package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("photo", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("email", "email is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "QuotaExhausted wraps ErrQuotaExhausted",
			err:       QuotaExhausted(),
			target:    ErrQuotaExhausted,
			wantMatch: true,
		},
		{
			name:      "UpstreamStore keeps the cause in the chain",
			err:       UpstreamStore(errStoreDown),
			target:    errStoreDown,
			wantMatch: true,
		},
		{
			name:      "DeliveryFailed wraps ErrDeliveryFailed",
			err:       DeliveryFailed(errStoreDown),
			target:    ErrDeliveryFailed,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("photo", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Upstream does NOT match ErrUpstreamStore",
			err:       Upstream(errStoreDown),
			target:    ErrUpstreamStore,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

var errStoreDown = errors.New("store down")

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid email", InvalidEmail("bad"), KindInvalidEmail},
		{"delivery failed", DeliveryFailed(errStoreDown), KindDeliveryFailed},
		{"invalid or expired", InvalidOrExpired(), KindInvalidOrExpired},
		{"unauthenticated", Unauthenticated("no token"), KindUnauthenticated},
		{"quota exhausted", QuotaExhausted(), KindQuotaExhausted},
		{"no payload", NoPayload(), KindNoPayload},
		{"upstream store", UpstreamStore(errStoreDown), KindUpstreamStore},
		{"upstream", Upstream(errStoreDown), KindUpstream},
		{"persist", Persist(errStoreDown), KindPersist},
		{"not found", NotFound("photo", "x"), KindNotFound},
		{"wrapped twice", fmt.Errorf("service: %w", QuotaExhausted()), KindQuotaExhausted},
		{"plain error", errStoreDown, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("photo", "abc123"),
			wantMessage: "photo not found with id abc123",
		},
		{
			name:        "InvalidOrExpired uses the fixed message",
			err:         InvalidOrExpired(),
			wantMessage: "Invalid or expired OTP",
		},
		{
			name:        "QuotaExhausted uses the fixed message",
			err:         QuotaExhausted(),
			wantMessage: "Photo upload limit reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("photo", "abc123")
	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestFieldIsSet(t *testing.T) {
	if err := InvalidEmail("invalid email format"); err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
	if err := NoPayload(); err.Field != "file" {
		t.Errorf("Field = %q, want %q", err.Field, "file")
	}
}
