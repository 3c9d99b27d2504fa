// Package disposable decides whether an email domain hands out throwaway mailboxes.
//
// Strategies implement Detector and compose: the remote reputation API can sit behind
// a Redis verdict cache and in front of the bundled library list as its fallback.
package disposable

import (
	"context"
	"strings"

	emailverifier "github.com/AfterShip/email-verifier"
)

// Detector classifies a lower-cased ASCII domain.
type Detector interface {
	IsDisposable(ctx context.Context, domain string) (bool, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, domain string) (bool, error)

func (f DetectorFunc) IsDisposable(ctx context.Context, domain string) (bool, error) {
	return f(ctx, domain)
}

// Library checks the disposable-domain list bundled with email-verifier.
// Parent domains are checked too, so mail.example-throwaway.com matches its apex.
type Library struct {
	lookup func(domain string) bool
}

func NewLibrary() *Library {
	v := emailverifier.NewVerifier()
	return &Library{lookup: v.IsDisposable}
}

// NewLibraryFromList builds a Library over a fixed domain list.
func NewLibraryFromList(domains ...string) *Library {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		set[strings.ToLower(d)] = struct{}{}
	}
	return &Library{lookup: func(domain string) bool {
		_, ok := set[domain]
		return ok
	}}
}

func (l *Library) IsDisposable(_ context.Context, domain string) (bool, error) {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	for d := domain; d != ""; {
		if l.lookup(d) {
			return true, nil
		}
		dot := strings.IndexByte(d, '.')
		if dot < 0 {
			break
		}
		d = d[dot+1:]
		if !strings.Contains(d, ".") {
			break
		}
	}
	return false, nil
}
