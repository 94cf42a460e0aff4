package wsauthz

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrUnknownPermission   = errors.New("unknown permission")
	ErrUnknownRole         = errors.New("unknown role")
	ErrScopeViolation      = errors.New("permission scope exceeds role scope")
	ErrCatalogSealed       = errors.New("catalog is sealed")
	ErrWorkspaceNotFound   = errors.New("workspace not found")
	ErrWorkspaceInactive   = errors.New("workspace inactive")
	ErrNoMembership        = errors.New("no membership in workspace")
	ErrNotPermitted        = errors.New("not permitted")
	ErrConcurrencyConflict = errors.New("concurrent modification")
	ErrSessionNotFound     = errors.New("session not found")
)

// ConfigurationError reports a catalog or role definition problem. These are
// fatal at startup.
type ConfigurationError struct {
	Kind    string // "permission" or "role"
	Subject string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %q: %v", e.Kind, e.Subject, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing workspace, role or permission at request time.
type NotFoundError struct {
	Kind string
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func configErr(kind, subject string, err error) error {
	return &ConfigurationError{Kind: kind, Subject: subject, Err: err}
}

func notFound(kind, id string, err error) error {
	return &NotFoundError{Kind: kind, ID: id, Err: err}
}

// IsConfigurationError reports whether err came from catalog or role definition.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// DeniedError carries a DENY decision for operations that must fail rather
// than return a Decision.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("not permitted: %s (%s)", e.Decision.Permission, e.Decision.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrNotPermitted }
