package copier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/mxfmover/mxfmover/pkg/state"
	"github.com/mxfmover/mxfmover/pkg/storage"
)

// IntegrityError reports a size mismatch between source and copied
// destination.
type IntegrityError struct {
	SourceSize int64
	DestSize   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: source is %d bytes, destination is %d", e.SourceSize, e.DestSize)
}

// FailureOutcome is the classifier's verdict for one copy failure.
type FailureOutcome struct {
	Status state.FileStatus
	Reason string
}

// networkErrnos are error codes that indicate the destination share or
// the network path to it is unhealthy.
var networkErrnos = []error{
	syscall.EIO,
	syscall.ECONNREFUSED,
	syscall.ETIMEDOUT,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
	syscall.EPIPE,
	syscall.EACCES,
	syscall.ENOTCONN,
	syscall.ECONNRESET,
}

// networkIndicators are substrings that indicate network trouble when
// the error does not carry a recognizable code.
var networkIndicators = []string{
	"input/output error",
	"network is unreachable",
	"no route to host",
	"host is down",
	"broken pipe",
	"connection reset",
	"connection refused",
	"stale file handle",
	"smb error",
	"the network name cannot be found",
	"the network path was not found",
	"access is denied",
}

// sourceMissingIndicators are substrings pointing at a vanished source.
var sourceMissingIndicators = []string{
	"no such file or directory",
	"the system cannot find the file",
	"file does not exist",
}

// Classifier maps raw copy errors to a lifecycle outcome. It consults
// the storage monitor: if the destination is already known degraded,
// any failure is attributed to it.
type Classifier struct {
	monitor *storage.Monitor
}

// NewClassifier creates a classifier backed by the storage monitor.
// A nil monitor skips the destination-health attribution.
func NewClassifier(monitor *storage.Monitor) *Classifier {
	return &Classifier{monitor: monitor}
}

// Classify evaluates the rules in order and returns the target state
// plus a human-readable reason. sourcePath is re-checked to separate
// vanished sources from transient source errors.
func (c *Classifier) Classify(err error, sourcePath string) FailureOutcome {
	if c.monitor != nil && c.monitor.DestinationInfo().Status.Degraded() {
		return FailureOutcome{
			Status: state.StatusFailed,
			Reason: fmt.Sprintf("network failure: destination unavailable: %v", err),
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err):
		return FailureOutcome{Status: state.StatusFailed, Reason: "operation timed out"}

	case isIntegrityError(err):
		return FailureOutcome{Status: state.StatusFailed, Reason: err.Error()}

	case isNetworkError(err):
		return FailureOutcome{
			Status: state.StatusFailed,
			Reason: fmt.Sprintf("network failure: %v", err),
		}

	case isSourceMissingError(err):
		if _, statErr := os.Stat(sourcePath); os.IsNotExist(statErr) {
			return FailureOutcome{Status: state.StatusRemoved, Reason: "source file no longer exists"}
		}
		return FailureOutcome{
			Status: state.StatusFailed,
			Reason: fmt.Sprintf("source error: %v", err),
		}

	default:
		return FailureOutcome{
			Status: state.StatusFailed,
			Reason: fmt.Sprintf("unknown error: %v", err),
		}
	}
}

func isIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

func isNetworkError(err error) bool {
	for _, errno := range networkErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return containsAny(err, networkIndicators)
}

func isSourceMissingError(err error) bool {
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	return containsAny(err, sourceMissingIndicators)
}

func containsAny(err error, indicators []string) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range indicators {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
