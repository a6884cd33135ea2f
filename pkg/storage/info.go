// Package storage watches the health of the source and destination
// locations: existence, free space, and write access. It drives the
// auto-mount adapter for the destination and feeds the space arbiter
// and error classifier with cached health state.
package storage

import "time"

// Status classifies one checked location.
type Status string

const (
	// StatusUnknown is the state before the first completed check.
	StatusUnknown Status = "UNKNOWN"

	// StatusOK means accessible with free space above the warning
	// threshold.
	StatusOK Status = "OK"

	// StatusWarning means accessible but free space is below the
	// warning threshold.
	StatusWarning Status = "WARNING"

	// StatusCritical means accessible but free space is below the
	// critical threshold.
	StatusCritical Status = "CRITICAL"

	// StatusError means the location is inaccessible or the write probe
	// failed.
	StatusError Status = "ERROR"
)

// Degraded reports whether the status blocks new copies.
func (s Status) Degraded() bool {
	return s == StatusError || s == StatusCritical
}

// Location kinds checked by the monitor.
const (
	KindSource      = "source"
	KindDestination = "destination"
)

// Info is the cached result of one location check. Accessible means the
// path could be reached and measured; HasWriteAccess means the write
// probe also succeeded. The thresholds the check was classified against
// are echoed so consumers can interpret the status.
type Info struct {
	Kind           string    `json:"kind"`
	Path           string    `json:"path"`
	Status         Status    `json:"status"`
	TotalBytes     uint64    `json:"total_bytes"`
	UsedBytes      uint64    `json:"used_bytes"`
	FreeBytes      uint64    `json:"free_bytes"`
	Accessible     bool      `json:"accessible"`
	HasWriteAccess bool      `json:"has_write_access"`
	Error          string    `json:"error,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`

	WarningThreshold  uint64 `json:"warning_threshold"`
	CriticalThreshold uint64 `json:"critical_threshold"`
}
