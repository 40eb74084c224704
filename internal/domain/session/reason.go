package session

import (
	"net/url"
	"strings"
)

// ReasonCode is the machine-readable cause carried to the sign-in page.
type ReasonCode string

const (
	ReasonTimeout           ReasonCode = "timeout"
	ReasonOAuth             ReasonCode = "oauth"
	ReasonNoCode            ReasonCode = "no_code"
	ReasonTokenTimeout      ReasonCode = "token_timeout"
	ReasonConfigurationLost ReasonCode = "configuration_lost"
	ReasonNoTenant          ReasonCode = "no_tenant"
	ReasonLogout            ReasonCode = "logout"
)

var reasonMessages = map[ReasonCode]string{
	ReasonTimeout:           "You were signed out after a period of inactivity.",
	ReasonOAuth:             "Sign-in with your identity provider failed. Please try again.",
	ReasonNoCode:            "The sign-in response was incomplete. Please try again.",
	ReasonTokenTimeout:      "Sign-in took too long to complete. Please try again.",
	ReasonConfigurationLost: "Sign-in is temporarily unavailable. Please try again shortly.",
	ReasonNoTenant:          "Your account is not linked to a business yet.",
	ReasonLogout:            "You have been signed out.",
}

// Message returns the user-facing text for the reason.
func (r ReasonCode) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return "Please sign in again."
}

// Known reports whether r is one of the defined reason codes.
func (r ReasonCode) Known() bool {
	_, ok := reasonMessages[r]
	return ok
}

// SignInURL appends reason and redirect_uri query parameters to base. The redirect is
// dropped unless it is a same-origin absolute path.
func SignInURL(base string, reason ReasonCode, redirect string) string {
	q := url.Values{}
	q.Set("reason", string(reason))
	if SafeRedirectPath(redirect) {
		q.Set("redirect_uri", redirect)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// SafeRedirectPath accepts "/x" style paths and rejects protocol-relative or absolute URLs.
// Any backslash is refused: browsers treat "/\host" like "//host".
func SafeRedirectPath(p string) bool {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.ContainsRune(p, '\\') {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
