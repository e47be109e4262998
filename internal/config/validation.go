package config

import (
	"errors"
	"fmt"
	"path"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags, then the rules tags cannot express
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

func validateCustomRules(cfg *Config) error {
	if cfg.Retry.MaxWait > 0 && cfg.Retry.MaxWait < cfg.Retry.InitialWait {
		return fmt.Errorf("retry: max_wait (%s) is shorter than initial_wait (%s)",
			cfg.Retry.MaxWait, cfg.Retry.InitialWait)
	}

	for i, p := range cfg.Exclude.Patterns {
		if p == "" {
			return fmt.Errorf("exclude.patterns[%d]: empty pattern", i)
		}
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("exclude.patterns[%d]: %q: %w", i, p, err)
		}
	}

	if cfg.Trash.Dir != "" && cfg.Library != "" && cfg.Trash.Dir == cfg.Library {
		return fmt.Errorf("trash.dir must not be the library root")
	}

	return nil
}

// formatValidationError reports the first failing field with its tag
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
