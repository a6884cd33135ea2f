package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks cfg against the struct validation tags plus the
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("field %q failed validation rule %q", e.Namespace(), e.Tag())
		}
		return err
	}

	if cfg.SourceDirectory == cfg.DestinationDirectory {
		return fmt.Errorf("source_directory and destination_directory must differ")
	}

	if cfg.Storage.Source.CriticalThreshold > cfg.Storage.Source.WarningThreshold {
		return fmt.Errorf("storage.source: critical_threshold must not exceed warning_threshold")
	}
	if cfg.Storage.Destination.CriticalThreshold > cfg.Storage.Destination.WarningThreshold {
		return fmt.Errorf("storage.destination: critical_threshold must not exceed warning_threshold")
	}

	if cfg.Copy.Resume.Enabled && cfg.Copy.Resume.VerifyWindowMin > cfg.Copy.Resume.VerifyWindowMax {
		return fmt.Errorf("copy.resume: verify_window_min must not exceed verify_window_max")
	}

	if cfg.Mount.EnableAutoMount && cfg.Mount.NetworkShareURL == "" {
		return fmt.Errorf("mount: enable_auto_mount requires network_share_url")
	}

	return nil
}
