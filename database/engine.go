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
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

const (
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
	driverSQLite   = "sqlite"
)

// resolveDriver normalizes the bind type, inferring it from the URL scheme
// when Type is empty.
func resolveDriver(cfg *ConnectionConfig) (string, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" && cfg.URL != "" {
		typ = schemeOf(cfg.URL)
	}
	switch typ {
	case "postgres", "postgresql":
		return driverPostgres, nil
	case "mysql":
		return driverMySQL, nil
	case "sqlite", "sqlite3", "file":
		return driverSQLite, nil
	case "":
		return "", errors.Wrap(ErrInvalidConfig, "bind needs a type or an url")
	default:
		return "", errors.Wrapf(ErrUnsupportedBind, "unsupported database type: %s", typ)
	}
}

func schemeOf(url string) string {
	if i := strings.Index(url, "://"); i > 0 {
		return strings.ToLower(url[:i])
	}
	if strings.HasPrefix(url, "file:") {
		return "file"
	}
	return ""
}

// openEngine opens the sql pool and wraps it in a bun DB with the bind's hooks
// installed. The connection is verified with a ping bounded by ConnectTimeout.
func openEngine(ctx context.Context, name string, cfg ConnectionConfig, logger Logger) (*sql.DB, *bun.DB, error) {
	driver, err := resolveDriver(&cfg)
	if err != nil {
		return nil, nil, err
	}

	var (
		sqlDB *sql.DB
		db    *bun.DB
	)
	switch driver {
	case driverMySQL:
		sqlDB, err = sql.Open("mysql", mysqlDSN(cfg))
		if err == nil {
			db = bun.NewDB(sqlDB, mysqldialect.New())
		}
	case driverPostgres:
		sqlDB, err = sql.Open("postgres", postgresDSN(cfg))
		if err == nil {
			db = bun.NewDB(sqlDB, pgdialect.New())
		}
	case driverSQLite:
		sqlDB, err = sql.Open(sqliteshim.ShimName, sqliteDSN(name, cfg))
		if err == nil {
			db = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open bind %q", name)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	if driver == driverSQLite && isSQLiteMemory(cfg) {
		// The database lives as long as one connection to it stays open.
		sqlDB.SetMaxIdleConns(max(cfg.MaxIdleConns, 1))
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	}

	if cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(newSlowQueryHook(name, cfg.SlowQueryTime, logger))
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrapf(err, "database connection test failed for bind %q", name)
	}
	return sqlDB, db, nil
}

func mysqlDSN(cfg ConnectionConfig) string {
	if cfg.URL != "" {
		return strings.TrimPrefix(cfg.URL, "mysql://")
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		portOr(cfg.Port, 3306),
		cfg.DBName,
		cfg.ConnectTimeout,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
	)
}

func postgresDSN(cfg ConnectionConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		portOr(cfg.Port, 5432),
		cfg.DBName,
		sslMode,
		int(cfg.ConnectTimeout.Seconds()),
	)
}

// sqliteDSN accepts sqlite://path, file: URIs, :memory: and plain file names.
// A name without extension gets ".db" appended. An empty name or :memory:
// opens an in-memory database private to the bind and shared by its pool.
func sqliteDSN(bindName string, cfg ConnectionConfig) string {
	if isSQLiteMemory(cfg) {
		return sqliteMemoryDSN(bindName)
	}
	if cfg.URL != "" {
		return trimSQLiteScheme(cfg.URL)
	}
	name := cfg.DBName
	if strings.HasPrefix(name, "file:") {
		return name
	}
	if filepath.Ext(name) == "" {
		name += ".db"
	}
	return name
}

func isSQLiteMemory(cfg ConnectionConfig) bool {
	if cfg.URL != "" {
		return trimSQLiteScheme(cfg.URL) == ":memory:"
	}
	return cfg.DBName == "" || cfg.DBName == ":memory:"
}

func trimSQLiteScheme(u string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(u, prefix) {
			return strings.TrimPrefix(u, prefix)
		}
	}
	return u
}

// sqliteMemoryDSN names the shared cache uniquely so two binds, or two
// managers using the same bind name, never see each other's tables.
func sqliteMemoryDSN(bindName string) string {
	return fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", url.PathEscape(bindName), uuid.NewString())
}

func portOr(port, def int) int {
	if port == 0 {
		return def
	}
	return port
}
