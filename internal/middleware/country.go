package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// countryHeaders are set by the CDN or proxy in front of the service.
var countryHeaders = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry"}

// Country stores the caller's ISO country code in the request context. It is
// recorded with payment notifications and never used for decisions.
func Country(lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if country := ResolveCountry(r, lookup); country != "" {
				r = r.WithContext(context.WithValue(r.Context(), countryKey, country))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(countryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry prefers proxy headers and falls back to the lookup.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range countryHeaders {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" && !strings.EqualFold(val, "XX") {
			return strings.ToUpper(val)
		}
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return strings.ToUpper(country)
}

// ClientIP returns the first valid X-Forwarded-For address, falling back to the
// connection's remote host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip != "" && net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}
