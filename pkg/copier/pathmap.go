package copier

import (
	"path/filepath"
	"time"
)

// PathMapper maps a source filename to the relative subdirectory it
// lands in under the destination root.
type PathMapper interface {
	Subpath(filename string, now time.Time) string
}

// FlatMapper puts every file directly in the destination root.
type FlatMapper struct{}

func (FlatMapper) Subpath(string, time.Time) string { return "" }

// DateMapper buckets files by copy date, YYYY/MM/DD.
type DateMapper struct{}

func (DateMapper) Subpath(_ string, now time.Time) string {
	return filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"))
}

// MapperFor selects the mapper for the configured path template.
func MapperFor(template string) PathMapper {
	if template == "date" {
		return DateMapper{}
	}
	return FlatMapper{}
}
