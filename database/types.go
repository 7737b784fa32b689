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
	"database/sql"
	"strings"
	"time"

	"github.com/tomoncle/binder/utils"
)

// DefaultBindName is the bind used when no name is given.
const DefaultBindName = "default"

// HealthStatus holds the result of a health check against one bind.
type HealthStatus struct {
	Bind          string        `json:"bind"`
	Healthy       bool          `json:"healthy"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql pool statistics of one bind.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// SessionOptions are applied to every transaction a bind's sessions begin.
type SessionOptions struct {
	ReadOnly bool `yaml:"read_only" json:"read_only"`
	// Isolation is one of "", "default", "read_uncommitted", "read_committed",
	// "write_committed", "repeatable_read", "snapshot", "serializable",
	// "linearizable".
	Isolation string `yaml:"isolation" json:"isolation" validate:"omitempty,oneof=default read_uncommitted read_committed write_committed repeatable_read snapshot serializable linearizable"`
}

// TxOptions converts the options into database/sql transaction options.
func (o SessionOptions) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: isolationLevel(o.Isolation),
		ReadOnly:  o.ReadOnly,
	}
}

func isolationLevel(s string) sql.IsolationLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read_uncommitted":
		return sql.LevelReadUncommitted
	case "read_committed":
		return sql.LevelReadCommitted
	case "write_committed":
		return sql.LevelWriteCommitted
	case "repeatable_read":
		return sql.LevelRepeatableRead
	case "snapshot":
		return sql.LevelSnapshot
	case "serializable":
		return sql.LevelSerializable
	case "linearizable":
		return sql.LevelLinearizable
	default:
		return sql.LevelDefault
	}
}

// ConnectionConfig describes one bind: how to reach the database, how to tune
// its pool and which options its sessions use.
type ConnectionConfig struct {
	Type            string         `yaml:"type" json:"type" validate:"omitempty,oneof=postgres postgresql mysql sqlite sqlite3"`
	URL             string         `yaml:"url" json:"url"`
	Host            string         `yaml:"host" json:"host"`
	Port            int            `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
	Username        string         `yaml:"username" json:"username"`
	Password        string         `yaml:"password" json:"password"`
	DBName          string         `yaml:"dbname" json:"dbname"`
	SSLMode         string         `yaml:"sslmode" json:"sslmode"`
	MaxIdleConns    int            `yaml:"max_idle_conns" json:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns    int            `yaml:"max_open_conns" json:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration  `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration  `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout  time.Duration  `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout     time.Duration  `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration  `yaml:"write_timeout" json:"write_timeout"`
	EnableQueryLog  bool           `yaml:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime   time.Duration  `yaml:"slow_query_time" json:"slow_query_time"`
	Session         SessionOptions `yaml:"session" json:"session"`
}

// MigrateConfig controls what the manager does with registered models on
// startup.
type MigrateConfig struct {
	CreateTablesOnStartup bool `yaml:"create_tables_on_startup" json:"create_tables_on_startup"`
}

// LogConfig configures the default logrus backed logger.
type LogConfig struct {
	Level         string               `yaml:"level" json:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	ConsoleFormat string               `yaml:"console_format" json:"console_format" validate:"omitempty,oneof=text json"`
	File          utils.FileLogOptions `yaml:"file" json:"file"`
}

// Config aggregates every bind with migration and logging settings.
type Config struct {
	Binds   map[string]ConnectionConfig `yaml:"binds" json:"binds" validate:"required,min=1,dive"`
	Migrate MigrateConfig               `yaml:"migrate" json:"migrate"`
	Log     LogConfig                   `yaml:"log" json:"log"`
}

// SingleBindConfig wraps one connection as the default bind.
func SingleBindConfig(conn ConnectionConfig) *Config {
	return &Config{Binds: map[string]ConnectionConfig{DefaultBindName: conn}}
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		ReadTimeout:     time.Second * 30,
		WriteTimeout:    time.Second * 30,
		EnableQueryLog:  false,
		SlowQueryTime:   time.Second * 2,
	}
}

// withDefaults fills zero pool and timeout values from DefaultConnectionConfig.
func (c ConnectionConfig) withDefaults() ConnectionConfig {
	d := DefaultConnectionConfig()
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = d.MaxOpenConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = d.ConnMaxIdleTime
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}
