// Package errdefs defines the error kinds surfaced by cluster operations.
//
// Callers match them with errors.As; every kind carries enough context
// (field, cluster id, operation) to diagnose the failure without logs.
package errdefs

import (
	"errors"
	"fmt"
)

// ConfigError reports missing, invalid or contradictory configuration.
// It is always raised before any provider call.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Configf builds a ConfigError for field.
func Configf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced cluster or template that does not exist.
type NotFoundError struct {
	Kind string // "cluster", "record", "master instance"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// PolicyError reports an operation refused by policy.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return "operation not allowed: " + e.Reason
}

// ProviderError wraps an error returned by the cloud provider.
type ProviderError struct {
	Op        string
	ClusterID string
	Err       error
}

func (e *ProviderError) Error() string {
	if e.ClusterID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (cluster %s): %v", e.Op, e.ClusterID, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Provider wraps err as a ProviderError. A nil err stays nil.
func Provider(op, clusterID string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Op: op, ClusterID: clusterID, Err: err}
}

// TimeoutError reports a bounded wait that ran out of attempts.
type TimeoutError struct {
	Op        string
	ClusterID string
	Attempts  int
	Detail    string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout waiting for %s on cluster %s after %d attempts", e.Op, e.ClusterID, e.Attempts)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsPolicy reports whether err is a PolicyError.
func IsPolicy(err error) bool {
	var target *PolicyError
	return errors.As(err, &target)
}

// IsProvider reports whether err is a ProviderError.
func IsProvider(err error) bool {
	var target *ProviderError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}
