package tenant

import (
	apperrors "github.com/target/sessionguard/internal/errors"
)

var (
	// ErrNoTenantIdentifier is returned when no source yields a tenant id.
	ErrNoTenantIdentifier = apperrors.New(apperrors.ErrCodeNoTenantIdentifier, "no tenant identifier available")

	// ErrInvalidFormat flags an id that is neither a UUID nor a short hex business id.
	// Resolution treats it as a warning and still uses the value.
	ErrInvalidFormat = apperrors.New(apperrors.ErrCodeInvalidFormat, "tenant identifier has an unexpected format")

	// ErrTenantNotPermitted is returned when a session asks for a tenant its user
	// is not entitled to.
	ErrTenantNotPermitted = apperrors.New(apperrors.ErrCodeConflict, "tenant is not permitted for this user")
)
