package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"
)

// envPlaceholder matches ${VAR_NAME} references in string values.
var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML configuration file, expands environment-variable
// placeholders, applies CLI overrides and validates the result.
//
// A missing or empty file is valid and yields all defaults. Unknown keys are
// a hard validation error so typos fail closed. Override precedence is
// strictly higher than file values. Loading is deterministic: the same file,
// environment and overrides always produce a field-for-field identical
// TestConfig.
func Load(path string, overrides map[string]string) (*TestConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, NewConfigError("config", fmt.Sprintf("cannot read %s: %v", path, err))
			}
			// Missing file: run on defaults.
		} else if len(data) > 0 {
			data = ExpandEnv(data)
			if err := yaml.UnmarshalStrict(data, cfg); err != nil {
				return nil, NewConfigError("config", unmarshalReason(err))
			}
		}
	}

	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ExpandEnv replaces ${VAR} references with values from the process
// environment. Unresolved placeholders are left verbatim so optional
// credentials do not fail the load.
func ExpandEnv(data []byte) []byte {
	return envPlaceholder.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPlaceholder.FindSubmatch(match)[1]
		if value, ok := os.LookupEnv(string(name)); ok {
			return []byte(value)
		}
		return match
	})
}

// unmarshalReason trims the yaml library's error prefix down to the part a
// user can act on.
func unmarshalReason(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "unknown field"); i >= 0 {
		return msg[i:]
	}
	return msg
}

// applyOverrides applies CLI-supplied key/value overrides onto cfg. Keys use
// the flag spelling of the run command. An unknown key is a ConfigError.
func applyOverrides(cfg *TestConfig, overrides map[string]string) error {
	for key, value := range overrides {
		switch key {
		case "suite":
			cfg.Suite = value
		case "platform":
			cfg.Platform = Platform(value)
		case "deployment-mode":
			cfg.DeploymentMode = DeploymentMode(value)
		case "prometheus-url":
			cfg.Target.URL = value
		case "namespace":
			cfg.Target.Namespace = value
		case "org-id":
			cfg.Target.OrgID = value
		case "version":
			cfg.Target.Version = value
		case "k6-vus":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return NewConfigError("k6-vus", fmt.Sprintf("must be a positive integer, got %q", value))
			}
			cfg.Tests.Load.VUs = n
			cfg.Tests.Endurance.VUs = n
		case "k6-duration":
			cfg.Tests.Load.Duration = value
			cfg.Tests.Stress.Duration = value
			cfg.Tests.Endurance.Duration = value
		case "timeout":
			cfg.Runner.GlobalTimeout = value
		case "parallel":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return NewConfigError("parallel", fmt.Sprintf("must be a boolean, got %q", value))
			}
			cfg.Runner.Parallel = b
		case "fail-fast":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return NewConfigError("fail-fast", fmt.Sprintf("must be a boolean, got %q", value))
			}
			cfg.Runner.FailFast = b
		case "output":
			cfg.Output.Dir = value
		default:
			return NewConfigError(key, "unknown override key")
		}
	}
	return nil
}
