package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a row does not exist
var ErrNotFound = errors.New("not found")

// AuthenticationError means the caller could not be identified
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

// AuthorizationError means the caller lacks the role required for a business
type AuthorizationError struct {
	UserID     string
	BusinessID string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s is not authorized for business %s", e.UserID, e.BusinessID)
}

// SignatureVerificationError means a webhook signature was missing or wrong
type SignatureVerificationError struct {
	Provider Provider
	Reason   string
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("%s webhook signature rejected: %s", e.Provider, e.Reason)
}

// IntegrationNotFoundError means no connected integration owns the store
type IntegrationNotFoundError struct {
	Provider        Provider
	ExternalStoreID string
}

func (e *IntegrationNotFoundError) Error() string {
	return fmt.Sprintf("store %q is not linked to a connected %s integration", e.ExternalStoreID, e.Provider)
}

// ValidationError means a payload or request is malformed
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ProviderAPIError describes a failed outbound call to a provider
type ProviderAPIError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderAPIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
	case e.StatusCode != 0:
		if e.Body != "" {
			return fmt.Sprintf("%s %s failed: HTTP %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s %s failed: HTTP %d", e.Provider, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s failed", e.Provider, e.Op)
}

func (e *ProviderAPIError) Unwrap() error {
	return e.Err
}
