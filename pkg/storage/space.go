package storage

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// SpaceDecision is the arbiter's answer for one prospective copy.
type SpaceDecision struct {
	HasSpace bool
	Reason   string
	Free     uint64
	Required uint64
}

// CheckSpace decides whether the destination can take a file of the
// given size, using the cached destination health. Required space is
// the file size plus the copy safety margin plus the minimum free space
// that must remain after the copy.
func (m *Monitor) CheckSpace(fileSize int64) SpaceDecision {
	if !m.cfg.Space.EnablePreCopyCheck {
		return SpaceDecision{HasSpace: true, Reason: "pre-copy check disabled"}
	}

	info := m.DestinationInfo()

	if info.Status == StatusUnknown || info.CheckedAt.IsZero() {
		return SpaceDecision{HasSpace: false, Reason: "storage information unavailable"}
	}
	if !info.Accessible || !info.HasWriteAccess {
		reason := "destination not accessible"
		if info.Error != "" {
			reason = fmt.Sprintf("destination not accessible: %s", info.Error)
		}
		return SpaceDecision{HasSpace: false, Reason: reason}
	}

	required := uint64(fileSize) + m.cfg.Space.CopySafetyMargin.Uint64() + m.cfg.Space.MinimumFreeAfterCopy.Uint64()
	if info.FreeBytes < required {
		return SpaceDecision{
			HasSpace: false,
			Reason: fmt.Sprintf("insufficient space: need %s, have %s free",
				humanize.IBytes(required), humanize.IBytes(info.FreeBytes)),
			Free:     info.FreeBytes,
			Required: required,
		}
	}

	return SpaceDecision{HasSpace: true, Free: info.FreeBytes, Required: required}
}
