// Package emailcheck decides whether an address is worth sending a code to.
//
// Two levels of checking:
//   - syntax: the address parses as a bare RFC 5322 addr-spec with a dotted
//     domain. Always on.
//   - deep: the domain is not a known throwaway provider and publishes at
//     least one MX record. On unless disabled in config.
//
// Every failure is an apperror.ErrInvalidEmail.
package emailcheck

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"strings"

	"github.com/sakif/photo-wall/internal/apperror"
)

// DefaultDisposableDomains is the built-in throwaway-provider blocklist.
// Config can replace it.
var DefaultDisposableDomains = []string{
	"10minutemail.com",
	"dispostable.com",
	"getnada.com",
	"guerrillamail.com",
	"maildrop.cc",
	"mailinator.com",
	"sharklasers.com",
	"temp-mail.org",
	"tempmail.com",
	"throwawaymail.com",
	"trashmail.com",
	"yopmail.com",
}

// Resolver is the slice of *net.Resolver the validator uses.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Validator normalises and checks email addresses.
type Validator struct {
	resolver   Resolver
	disposable map[string]struct{}
	deep       bool
}

// Option customises a Validator.
type Option func(*Validator)

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(v *Validator) { v.resolver = r }
}

// WithDisposableDomains replaces DefaultDisposableDomains.
func WithDisposableDomains(domains []string) Option {
	return func(v *Validator) {
		v.disposable = make(map[string]struct{}, len(domains))
		for _, d := range domains {
			v.disposable[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
		}
	}
}

// WithDeepValidation turns the disposable and MX checks on or off.
func WithDeepValidation(on bool) Option {
	return func(v *Validator) { v.deep = on }
}

// New creates a Validator with deep validation on and the default blocklist.
func New(opts ...Option) *Validator {
	v := &Validator{resolver: net.DefaultResolver, deep: true}
	WithDisposableDomains(DefaultDisposableDomains)(v)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Normalize validates raw and returns it trimmed and lower-cased, which is
// the form identities are keyed on.
func (v *Validator) Normalize(ctx context.Context, raw string) (string, error) {
	email, domain, err := parse(raw)
	if err != nil {
		return "", err
	}
	if !v.deep {
		return email, nil
	}

	if _, blocked := v.disposable[domain]; blocked {
		return "", apperror.InvalidEmail("Disposable email detected")
	}

	records, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		return "", apperror.InvalidEmail("Invalid email domain")
	}
	if len(records) == 0 {
		return "", apperror.InvalidEmail("No MX records found")
	}

	return email, nil
}

func parse(raw string) (email, domain string, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", apperror.InvalidEmail("Email is required")
	}

	addr, perr := mail.ParseAddress(trimmed)
	// A display name or angle brackets mean the caller sent more than an address.
	if perr != nil || addr.Name != "" || addr.Address != trimmed {
		return "", "", apperror.InvalidEmail(fmt.Sprintf("%q is not a valid email address", trimmed))
	}

	email = strings.ToLower(addr.Address)
	at := strings.LastIndexByte(email, '@')
	domain = email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", "", apperror.InvalidEmail(fmt.Sprintf("%q is not a valid email address", trimmed))
	}

	return email, domain, nil
}
