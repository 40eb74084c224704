package config

import "strings"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// SignedOutPath is where forced and voluntary sign-outs land, carrying a reason code.
	SignedOutPath string `env:"APP_SIGNED_OUT_PATH" envDefault:"/auth/signed-out"`

	// AccountSetupPath receives users for whom no tenant identifier could be resolved.
	AccountSetupPath string `env:"APP_ACCOUNT_SETUP_PATH" envDefault:"/account/setup"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.SignedOutPath = ensureLeadingSlash(h.SignedOutPath, "/auth/signed-out")
	h.AccountSetupPath = ensureLeadingSlash(h.AccountSetupPath, "/account/setup")
}

func ensureLeadingSlash(p, fallback string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.Contains(p, "://") {
		return fallback
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
