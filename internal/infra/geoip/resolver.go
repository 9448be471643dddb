package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when the resolver is not initialized.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// Resolver maps payment webhook callers to ISO country codes using a MaxMind
// GeoLite2/GeoIP2 country database.
type Resolver struct {
	reader *geoip2.Reader
}

// NewResolver opens the database at path. An empty path yields a nil resolver,
// whose Lookup is nil as well.
func NewResolver(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// CountryCode returns the ISO country code for ip. Private and loopback
// addresses resolve to "" without touching the database.
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return "", nil
	}
	record, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	if record == nil {
		return "", nil
	}
	return record.Country.IsoCode, nil
}

// Lookup adapts the resolver to the HTTP country middleware. It is nil when
// no database is configured.
func (r *Resolver) Lookup() func(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.CountryCode
}

// Close closes the underlying database reader.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
