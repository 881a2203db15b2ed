package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/staticd/internal/telemetry"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report yaml key paths (server.port) instead of Go field names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	var problems []string

	switch cfg.Origin.Type {
	case OriginDir:
		if cfg.Server.StaticDir == "" {
			problems = append(problems, "server.static_dir: required when origin.type is dir")
		}
	case OriginS3:
		if cfg.Origin.S3.Bucket == "" {
			problems = append(problems, "origin.s3.bucket: required when origin.type is s3")
		}
		if (cfg.Origin.S3.AccessKeyID == "") != (cfg.Origin.S3.SecretAccessKey == "") {
			problems = append(problems, "origin.s3: access_key_id and secret_access_key must be set together")
		}
	}

	if cfg.Server.ReadBufferSize < 16 {
		problems = append(problems, fmt.Sprintf("server.read_buffer_size: %s is too small to hold a request line", cfg.Server.ReadBufferSize))
	}

	if cfg.Telemetry.Profiling.Enabled {
		for _, pt := range cfg.Telemetry.Profiling.ProfileTypes {
			if !telemetry.ValidProfileType(pt) {
				problems = append(problems, fmt.Sprintf("telemetry.profiling.profile_types: unknown type %q", pt))
			}
		}
	}

	if cfg.Metrics.Enabled && cfg.API.IsEnabled() && cfg.Metrics.Port == cfg.API.Port {
		problems = append(problems, fmt.Sprintf("metrics.port: %d is already used by api.port", cfg.Metrics.Port))
	}
	if cfg.API.IsEnabled() && cfg.API.Port == cfg.Server.Port {
		problems = append(problems, fmt.Sprintf("api.port: %d is already used by server.port", cfg.API.Port))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// formatValidationErrors renders "path: failed 'tag' (param)" per field.
func formatValidationErrors(errs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		// Namespace is "Config.server.port"; drop the root type.
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		msg := fmt.Sprintf("%s: failed '%s'", path, fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}
