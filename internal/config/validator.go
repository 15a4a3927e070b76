package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/reportcheck/internal/prompt"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	envNamePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	sqlIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("model_name", func(fl validator.FieldLevel) bool {
			name := fl.Field().String()
			return name != "" && name == strings.TrimSpace(name) && len(name) <= 100
		})

		_ = v.RegisterValidation("stage_id", func(fl validator.FieldLevel) bool {
			return slices.Contains(prompt.IDs(), fl.Field().String())
		})

		_ = v.RegisterValidation("env_name", func(fl validator.FieldLevel) bool {
			return envNamePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("sql_ident", func(fl validator.FieldLevel) bool {
			return sqlIdentPattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// Validate performs schema and cross-field validation on the configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return rcerrors.NewValidationError("config", "configuration is nil", nil)
	}

	if err := validatorInstance().Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]int, len(cfg.Models))
	for i, m := range cfg.Models {
		if prev, ok := seen[m.Name]; ok {
			return rcerrors.NewValidationError(fmt.Sprintf("models[%d].name", i), fmt.Sprintf("duplicate model %q (first declared at models[%d])", m.Name, prev), nil)
		}
		seen[m.Name] = i

		switch m.Provider {
		case "yandex":
			if m.FolderIDEnv == "" {
				return rcerrors.NewValidationError(fmt.Sprintf("models[%d].folder_id_env", i), "required for yandex models", nil)
			}
		case "gigachat":
			if m.ScopeEnv == "" || m.AuthURL == "" {
				return rcerrors.NewValidationError(fmt.Sprintf("models[%d]", i), "gigachat models need scope_env and auth_url", nil)
			}
		}
		if m.Provider != "yandex" && m.Provider != "gigachat" && m.BaseURL == "" {
			return rcerrors.NewValidationError(fmt.Sprintf("models[%d].base_url", i), "required", nil)
		}
	}

	if cfg.DefaultModel != "" {
		known := false
		for _, spec := range cfg.Catalog() {
			if spec.Name == cfg.DefaultModel {
				known = true
				break
			}
		}
		if !known {
			return rcerrors.NewValidationError("default_model", fmt.Sprintf("unknown model %q", cfg.DefaultModel), nil)
		}
	}

	if cfg.Retry.MaxDelay > 0 && cfg.Retry.BaseDelay > cfg.Retry.MaxDelay {
		return rcerrors.NewValidationError("retry.base_delay", "must not exceed retry.max_delay", nil)
	}

	if cfg.Export.Driver != "" && cfg.Export.DSNEnv == "" {
		return rcerrors.NewValidationError("export.dsn_env", "required when export.driver is set", nil)
	}
	if cfg.Notify.DiscordTokenEnv != "" && cfg.Notify.DiscordChannel == "" {
		return rcerrors.NewValidationError("notify.discord_channel", "required when notify.discord_token_env is set", nil)
	}

	if cfg.Runs.Backend == RunsS3 && cfg.ObjectStore == nil {
		return rcerrors.NewValidationError("runs.backend", "s3 backend requires object_store", nil)
	}
	if cfg.Export.Objects && cfg.ObjectStore == nil {
		return rcerrors.NewValidationError("export.objects", "requires object_store", nil)
	}

	return nil
}

// convertValidationError normalizes validator errors into reportcheck validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return rcerrors.NewValidationError(field, msg, err)
	}

	return rcerrors.NewValidationError("config", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = strings.ToLower(part)
	}
	return strings.Join(parts, ".")
}
