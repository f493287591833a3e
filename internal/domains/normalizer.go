// Package domains turns arbitrary domain or URL strings into canonical
// registrable-domain keys (eTLD+1). Normalize is pure: no I/O, no state.
package domains

import (
	"errors"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrInvalidDomain is returned when the input lacks a registrable domain,
// e.g. a bare TLD, an empty string, or a malformed host.
var ErrInvalidDomain = errors.New("invalid domain")

// Normalize reduces a raw domain or URL to its lower-cased registrable
// domain. It is idempotent: Normalize(Normalize(x)) == Normalize(x) for every
// input it accepts.
func Normalize(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", ErrInvalidDomain
	}

	lower := strings.ToLower(host)
	if strings.HasPrefix(lower, "http://") {
		host = host[len("http://"):]
	} else if strings.HasPrefix(lower, "https://") {
		host = host[len("https://"):]
	}

	// Drop path/query, then a trailing port.
	host, _, _ = strings.Cut(host, "/")
	host, _, _ = strings.Cut(host, ":")

	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return "", ErrInvalidDomain
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", ErrInvalidDomain
	}
	return registrable, nil
}
