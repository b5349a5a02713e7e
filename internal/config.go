// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/youngkin/heyload/api"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable that overrides a config file
// setting, e.g., HEYLOAD_TARGET_URL or HEYLOAD_STRESS_DURATION.
const EnvPrefix = "HEYLOAD_"

// DefaultEnvFiles are loaded, when present, before the environment is applied.
var DefaultEnvFiles = []string{".env", ".env.local"}

const (
	defaultHealthPath    = "/health"
	defaultTimeout       = 5 * time.Second
	defaultRqstsPerEP    = 100
	defaultBatchSize     = 100
	defaultStressRequest = "/health"
)

// LoadEnvFiles loads the env files that exist into the process environment
// without overriding variables that are already set. It returns the number of
// files loaded.
func LoadEnvFiles(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return 0, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("loading env files %v: %s", existing, err))
	}
	return len(existing), nil
}

// LoadConfig reads fileName (JSON, or YAML for .yaml/.yml files), applies any
// environment overrides and then overrides, fills in defaults and validates the
// result. An empty fileName builds the configuration from the environment
// alone.
func LoadConfig(fileName string, overrides ...func(*api.LoadTestConfig)) (api.LoadTestConfig, error) {
	config := api.LoadTestConfig{}
	if fileName != "" {
		contents, err := os.ReadFile(fileName)
		if err != nil {
			return api.LoadTestConfig{}, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("unable to read config file %s", fileName))
		}
		log.Debug().Msgf("Raw config file contents: %s", string(contents))

		if config, err = ParseConfig(contents, filepath.Ext(fileName)); err != nil {
			return api.LoadTestConfig{}, err
		}
	}

	n, err := LoadEnvFiles(DefaultEnvFiles)
	if err != nil {
		return api.LoadTestConfig{}, err
	}
	log.Debug().Int("envFiles", n).Msg("Env files loaded")

	if err = ApplyEnv(&config); err != nil {
		return api.LoadTestConfig{}, err
	}
	for _, override := range overrides {
		override(&config)
	}

	ApplyDefaults(&config)
	if err = Validate(config); err != nil {
		return api.LoadTestConfig{}, err
	}
	return config, nil
}

// ParseConfig decodes contents as YAML when ext is .yaml or .yml, as JSON
// otherwise.
func ParseConfig(contents []byte, ext string) (api.LoadTestConfig, error) {
	config := api.LoadTestConfig{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(contents, &config); err != nil {
			return api.LoadTestConfig{}, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("error unmarshaling yaml config: %s", err))
		}
	default:
		if err := json.Unmarshal(contents, &config); err != nil {
			return api.LoadTestConfig{}, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("error unmarshaling json config: %s", err))
		}
	}
	return config, nil
}

// ApplyEnv overrides config with any HEYLOAD_ prefixed environment variables.
// Unset variables leave config untouched.
func ApplyEnv(config *api.LoadTestConfig) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("applying environment: %s", err))
	}
	return nil
}

// ApplyDefaults fills in every setting left at its zero value.
func ApplyDefaults(config *api.LoadTestConfig) {
	if config.HealthPath == "" {
		config.HealthPath = defaultHealthPath
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = api.Duration(defaultTimeout)
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = api.Duration(defaultTimeout)
	}
	if config.PenaltyLatency == 0 {
		config.PenaltyLatency = config.RequestTimeout
	}
	if config.DispatchModel == "" {
		config.DispatchModel = api.PoolModel
	}
	if config.Endpoints.RequestsPerEndpoint == 0 {
		config.Endpoints.RequestsPerEndpoint = defaultRqstsPerEP
	}
	if config.Stress.BatchSize == 0 {
		config.Stress.BatchSize = defaultBatchSize
	}
	if config.Ladder.Request.Path == "" {
		config.Ladder.Request.Path = config.HealthPath
	}
	if config.Stress.Request.Path == "" {
		config.Stress.Request.Path = defaultStressRequest
	}
	if len(config.Thresholds.Throughput) == 0 && len(config.Thresholds.Latency) == 0 &&
		config.Thresholds.ThroughputFloor == "" && config.Thresholds.LatencyCeiling == "" {
		config.Thresholds = api.DefaultThresholds()
	}
	if config.Output.Detail == "" {
		config.Output.Detail = "long"
	}
}

// Validate checks config for settings a run can't proceed with. Every error
// wraps ErrInvalidConfig.
func Validate(config api.LoadTestConfig) error {
	u, err := url.Parse(config.TargetURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("target_url %q must be an absolute http(s) URL", config.TargetURL))
	}
	if !config.Endpoints.Enabled && !config.Ladder.Enabled && !config.Stress.Enabled {
		return errors.Wrap(ErrInvalidConfig, "no test suite is enabled")
	}
	if config.DispatchModel != api.PoolModel && config.DispatchModel != api.BatchModel {
		return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("dispatch_model %q must be %q or %q",
			config.DispatchModel, api.PoolModel, api.BatchModel))
	}
	if config.MaxWorkers < 0 {
		return errors.Wrap(ErrInvalidConfig, "max_workers must not be negative")
	}
	if config.RequestTimeout < 0 || config.ProbeTimeout < 0 || config.PenaltyLatency < 0 {
		return errors.Wrap(ErrInvalidConfig, "timeouts must not be negative")
	}
	if config.Endpoints.Enabled {
		if config.Endpoints.RequestsPerEndpoint <= 0 {
			return errors.Wrap(ErrInvalidConfig, "api_tests.requests_per_endpoint must be positive")
		}
		if len(config.Endpoints.Endpoints) == 0 {
			return errors.Wrap(ErrInvalidConfig, "api_tests is enabled but has no endpoints")
		}
	}
	if config.Ladder.Enabled {
		if err := ValidateLevels(config.Ladder.Levels); err != nil {
			return err
		}
		if config.Ladder.Settle < 0 {
			return errors.Wrap(ErrInvalidConfig, "load_tests.settle must not be negative")
		}
	}
	if config.Stress.Enabled {
		if config.Stress.BatchSize <= 0 {
			return errors.Wrap(ErrInvalidConfig, "stress_tests.batch_size must be positive")
		}
		if config.Stress.Duration < 0 {
			return errors.Wrap(ErrInvalidConfig, "stress_tests.duration must not be negative")
		}
	}
	if d := strings.ToLower(config.Output.Detail); d != "" && d != "short" && d != "long" {
		return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("output.detail %q must be 'short' or 'long'", config.Output.Detail))
	}
	return ValidateThresholds(config.Thresholds)
}
