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

package database_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/binder/database"
	"github.com/tomoncle/binder/internal/testsupport"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func TestBindManagerLookups(t *testing.T) {
	m := testsupport.NewManager(t, database.DefaultBindName, "reports")

	assert.Equal(t, []string{"default", "reports"}, m.BindNames())

	def, err := m.GetBind()
	require.NoError(t, err)
	again, err := m.GetBind(database.DefaultBindName)
	require.NoError(t, err)
	assert.Same(t, def, again)

	reports, err := m.GetBind("reports")
	require.NoError(t, err)
	assert.NotSame(t, def, reports)
	assert.Equal(t, "reports", reports.Name())
	assert.Equal(t, "sqlite", reports.Dialect().String())

	_, err = m.GetBind("missing")
	assert.ErrorIs(t, err, database.ErrNotInitializedBind)
	_, err = m.GetSession("missing")
	assert.ErrorIs(t, err, database.ErrNotInitializedBind)
	_, err = m.GetMapper("missing")
	assert.ErrorIs(t, err, database.ErrNotInitializedBind)

	s1, err := m.GetSession("reports")
	require.NoError(t, err)
	s2, err := m.GetSession("reports")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID(), s2.ID())
	assert.Same(t, reports, s1.Bind())

	mapper, err := m.GetMapper()
	require.NoError(t, err)
	assert.Same(t, def.Mapper(), mapper)

	binds := m.GetBinds()
	delete(binds, "reports")
	assert.Len(t, m.GetBinds(), 2)
}

func TestBindManagerMetadataAndHealth(t *testing.T) {
	ctx := context.Background()
	m := testsupport.NewManager(t, database.DefaultBindName, "reports")

	meta := m.MappersMetadata()
	require.Len(t, meta, 2)
	for name, tables := range meta {
		require.Len(t, tables, 2, name)
		assert.Equal(t, "users", tables[0].Name)
		assert.Equal(t, "memberships", tables[1].Name)
	}

	health := m.HealthCheck(ctx)
	require.Len(t, health, 2)
	for name, status := range health {
		assert.True(t, status.Healthy, name)
		assert.Equal(t, name, status.Bind)
		assert.Empty(t, status.LastError)
	}

	stats := m.Stats()
	require.Contains(t, stats, "reports")
	assert.Equal(t, 100, stats["reports"].MaxOpenConns)
}

func TestBindManagerCreatesTables(t *testing.T) {
	bind := testsupport.NewBind(t)
	n, err := bind.DB().NewSelect().Model((*testsupport.User)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryBindsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := testsupport.NewMemoryManager(t, "a", "b")
	a, err := m.GetBind("a")
	require.NoError(t, err)
	b, err := m.GetBind("b")
	require.NoError(t, err)

	users := []*testsupport.User{{Name: "alice", Email: "alice@example.com"}}
	_, err = a.DB().NewInsert().Model(&users).Exec(ctx)
	require.NoError(t, err)

	n, err := a.DB().NewSelect().Model((*testsupport.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = b.DB().NewSelect().Model((*testsupport.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A second manager reusing bind "a" gets its own database.
	other, err := testsupport.NewMemoryManager(t, "a").GetBind("a")
	require.NoError(t, err)
	n, err = other.DB().NewSelect().Model((*testsupport.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewBindFromDB(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := sql.Open(sqliteshim.ShimName, filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	bind := database.NewBindFromDB("raw", bun.NewDB(sqlDB, sqlitedialect.New()), database.SessionOptions{}, database.NopLogger())

	assert.Equal(t, "raw", bind.Name())
	assert.Same(t, sqlDB, bind.SQLDB())
	require.NoError(t, bind.Mapper().Register(testsupport.Models()...))
	require.NoError(t, bind.Mapper().CreateAll(ctx))

	err = bind.NewSession().Run(ctx, false, func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewInsert().Model(&testsupport.User{Name: "alice", Email: "alice@example.com"}).Exec(ctx)
		return err
	})
	require.NoError(t, err)
	n, err := bind.DB().NewSelect().Model((*testsupport.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, bind.Close())
	assert.Error(t, sqlDB.PingContext(ctx))
}

func TestBindManagerClose(t *testing.T) {
	ctx := context.Background()
	m := testsupport.NewManager(t)
	bind, err := m.GetBind()
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Error(t, bind.Ping(ctx))

	status := bind.HealthCheck(ctx)
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.LastError)
}

func TestNewBindManagerErrors(t *testing.T) {
	ctx := context.Background()

	_, err := database.NewBindManager(ctx, nil)
	assert.ErrorIs(t, err, database.ErrInvalidConfig)

	_, err = database.NewBindManager(ctx, &database.Config{})
	assert.ErrorIs(t, err, database.ErrInvalidConfig)

	good := testsupport.SQLiteConfig(t, "good")
	bad := testsupport.SQLiteConfig(t, "bad")
	bad.DBName = filepath.Join(t.TempDir(), "missing", "dir", "bad.db")
	_, err = database.NewBindManager(ctx, &database.Config{
		Binds: map[string]database.ConnectionConfig{"a-good": good, "b-bad": bad},
	}, database.WithLogger(database.NopLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b-bad")

	_, err = database.NewSingleBindManager(ctx, good,
		database.WithLogger(database.NopLogger()),
		database.WithModels(42),
	)
	assert.ErrorIs(t, err, database.ErrInvalidModel)
}

func TestDefaultManager(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { _ = database.CloseDefault() })

	require.NoError(t, database.CloseDefault())
	_, err := database.Default()
	assert.ErrorIs(t, err, database.ErrNotInitializedBind)
	_, err = database.GetBind()
	assert.ErrorIs(t, err, database.ErrNotInitializedBind)

	first, err := database.Init(ctx, database.SingleBindConfig(testsupport.SQLiteConfig(t, "first")),
		database.WithLogger(database.NopLogger()))
	require.NoError(t, err)
	firstBind, err := database.GetBind()
	require.NoError(t, err)

	second, err := database.Init(ctx, database.SingleBindConfig(testsupport.SQLiteConfig(t, "second")),
		database.WithLogger(database.NopLogger()))
	require.NoError(t, err)

	current, err := database.Default()
	require.NoError(t, err)
	assert.Same(t, second, current)
	assert.NotSame(t, first, current)
	assert.Error(t, firstBind.Ping(ctx))

	_, err = database.Init(ctx, &database.Config{})
	assert.ErrorIs(t, err, database.ErrInvalidConfig)
	current, err = database.Default()
	require.NoError(t, err)
	assert.Same(t, second, current)

	require.NoError(t, database.CloseDefault())
	_, err = database.Default()
	assert.ErrorIs(t, err, database.ErrNotInitializedBind)
}
