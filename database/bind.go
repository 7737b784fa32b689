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
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Bind is one named database: its engine, the options its sessions use and
// its model registry. A Bind is safe for concurrent use.
type Bind struct {
	name   string
	config ConnectionConfig
	db     *bun.DB
	sqlDB  *sql.DB
	mapper *Mapper
	logger Logger

	closeOnce sync.Once
	closeErr  error
}

// OpenBind connects a single bind outside of a BindManager.
func OpenBind(ctx context.Context, name string, cfg ConnectionConfig, logger Logger) (*Bind, error) {
	if logger == nil {
		logger = GetLogger()
	}
	cfg = cfg.withDefaults()
	sqlDB, db, err := openEngine(ctx, name, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Database bind connected", "bind", name, "dialect", db.Dialect().Name().String())
	return &Bind{
		name:   name,
		config: cfg,
		db:     db,
		sqlDB:  sqlDB,
		mapper: newMapper(db),
		logger: logger,
	}, nil
}

// NewBindFromDB wraps an already opened bun DB. Closing the bind closes db.
func NewBindFromDB(name string, db *bun.DB, opts SessionOptions, logger Logger) *Bind {
	if logger == nil {
		logger = GetLogger()
	}
	return &Bind{
		name:   name,
		config: ConnectionConfig{Session: opts},
		db:     db,
		sqlDB:  db.DB,
		mapper: newMapper(db),
		logger: logger,
	}
}

func (b *Bind) Name() string { return b.name }

// DB returns the bun engine.
func (b *Bind) DB() *bun.DB { return b.db }

// SQLDB returns the underlying database/sql pool.
func (b *Bind) SQLDB() *sql.DB { return b.sqlDB }

func (b *Bind) Config() ConnectionConfig { return b.config }

func (b *Bind) Dialect() dialect.Name { return b.db.Dialect().Name() }

func (b *Bind) Mapper() *Mapper { return b.mapper }

func (b *Bind) Logger() Logger { return b.logger }

// SessionOptions returns the options new sessions of this bind start with.
func (b *Bind) SessionOptions() SessionOptions { return b.config.Session }

// NewSession returns a session that has not begun a transaction yet.
func (b *Bind) NewSession() *Session {
	return newSession(b, b.config.Session)
}

// Migrations returns a migration manager working on this bind.
func (b *Bind) Migrations() *MigrationManager {
	return NewMigrationManager(b.db, b.logger)
}

func (b *Bind) Ping(ctx context.Context) error {
	if b == nil || b.db == nil {
		return errors.Wrap(ErrUnsupportedBind, "bind not connected")
	}
	return b.db.PingContext(ctx)
}

// HealthCheck pings the bind with a five second bound and reports pool usage.
func (b *Bind) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{Bind: b.name, LastCheckTime: start}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	err := b.Ping(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
	}

	if b.sqlDB != nil {
		stats := b.sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}
	return status
}

func (b *Bind) Stats() *DBStats {
	if b.sqlDB == nil {
		return &DBStats{}
	}
	stats := b.sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// Close closes the engine once. Later calls return the first result.
func (b *Bind) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.db.Close()
		if b.closeErr != nil {
			b.logger.Error("Failed to close database bind", "bind", b.name, "error", b.closeErr)
			return
		}
		b.logger.Info("Database bind closed", "bind", b.name)
	})
	return b.closeErr
}
