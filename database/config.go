/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads a YAML configuration file, loads the optional env files
// (existing variables win), applies env overrides and validates the result.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "failed to load env files %v: %v", envFiles, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	ApplyEnvOverrides(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig decodes YAML into a Config without validating it.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "failed to parse config: %v", err)
	}
	return &cfg, nil
}

// ValidateConfig checks struct constraints and that every bind can resolve a
// driver.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.Wrap(ErrInvalidConfig, "database configuration cannot be empty")
	}
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	for _, name := range sortedBindNames(cfg.Binds) {
		if strings.TrimSpace(name) == "" {
			return errors.Wrap(ErrInvalidConfig, "bind name cannot be empty")
		}
		conn := cfg.Binds[name]
		if _, err := resolveDriver(&conn); err != nil {
			return errors.Wrapf(err, "bind %q", name)
		}
	}
	return nil
}

// ApplyEnvOverrides overrides bind settings from DB_<BIND>_* variables. The
// default bind also reads the unprefixed DB_* names, prefixed names win.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	for name, conn := range cfg.Binds {
		prefixes := []string{"DB_" + envKey(name) + "_"}
		if name == DefaultBindName {
			prefixes = append([]string{"DB_"}, prefixes...)
		}
		for _, prefix := range prefixes {
			overrideFromEnv(prefix, &conn)
		}
		cfg.Binds[name] = conn
	}
}

func overrideFromEnv(prefix string, cfg *ConnectionConfig) {
	if v := os.Getenv(prefix + "TYPE"); v != "" {
		cfg.Type = v
	}
	if v := os.Getenv(prefix + "URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv(prefix + "HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(prefix + "PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv(prefix + "USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(prefix + "PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv(prefix + "NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv(prefix + "SSLMODE"); v != "" {
		cfg.SSLMode = v
	}
	if v := os.Getenv(prefix + "MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIdleConns = n
		}
	}
	if v := os.Getenv(prefix + "MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOpenConns = n
		}
	}
	if v := os.Getenv(prefix + "CONN_MAX_LIFETIME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConnMaxLifetime = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv(prefix + "ENABLE_QUERY_LOG"); v != "" {
		cfg.EnableQueryLog = v == "true" || v == "1"
	}
	if v := os.Getenv(prefix + "SLOW_QUERY_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SlowQueryTime = d
		}
	}
}

func envKey(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
}

func sortedBindNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
