// Package legacycookie reads and clears the deprecated cookie-based tenant id.
package legacycookie

import (
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultNames are the cookie names older front ends used for the tenant id.
var DefaultNames = []string{"tenant_id", "businessId", "current_business_id"}

// Reader implements ports.LegacyTenantReader over request cookies.
type Reader struct {
	names []string
}

// NewReader returns a reader that checks names in order. Empty names fall back to DefaultNames.
func NewReader(names []string) *Reader {
	if len(names) == 0 {
		names = DefaultNames
	}
	return &Reader{names: append([]string(nil), names...)}
}

// Read returns the first non-empty legacy cookie value.
func (r *Reader) Read(req *http.Request) (string, bool) {
	if req == nil {
		return "", false
	}
	for _, name := range r.names {
		c, err := req.Cookie(name)
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, true
		}
	}
	return "", false
}

// Clear expires every legacy cookie for the request host and, when different,
// the registrable domain the old front end scoped them to.
func (r *Reader) Clear(w http.ResponseWriter, req *http.Request) {
	domains := []string{""}
	if req != nil {
		if d := registrableDomain(req.Host); d != "" {
			domains = append(domains, d)
		}
	}
	for _, name := range r.names {
		for _, domain := range domains {
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    "",
				Path:     "/",
				Domain:   domain,
				Expires:  time.Unix(0, 0),
				MaxAge:   -1,
				HttpOnly: false,
				SameSite: http.SameSiteLaxMode,
			})
		}
	}
}

// registrableDomain returns eTLD+1 for host, or "" for IPs, localhost and bare suffixes.
func registrableDomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return d
}
