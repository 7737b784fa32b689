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

// Package testsupport provides sqlite backed binds and sample models for
// tests.
package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/binder/database"
	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID       int64   `bun:"id,pk,autoincrement" json:"id"`
	Name     string  `bun:"name,notnull" json:"name"`
	Email    string  `bun:"email,notnull,unique" json:"email"`
	Age      int     `bun:"age" json:"age"`
	Nickname *string `bun:"nickname" json:"nickname,omitempty"`
}

// Membership has a composite primary key.
type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:m"`

	UserID  int64  `bun:"user_id,pk" json:"user_id"`
	GroupID int64  `bun:"group_id,pk" json:"group_id"`
	Role    string `bun:"role" json:"role"`
}

// Models lists the sample models in creation order.
func Models() []interface{} {
	return []interface{}{(*User)(nil), (*Membership)(nil)}
}

// SQLiteConfig returns a connection to a fresh sqlite file in a temp dir.
func SQLiteConfig(t testing.TB, name string) database.ConnectionConfig {
	t.Helper()
	cfg := *database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = filepath.Join(t.TempDir(), name+".db")
	return cfg
}

// MemoryConfig returns an in-memory sqlite connection.
func MemoryConfig() database.ConnectionConfig {
	cfg := *database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = ":memory:"
	return cfg
}

// NewManager builds a manager with one sqlite bind per name (the default
// bind when names is empty) and the sample tables created. It is closed
// when the test ends.
func NewManager(t testing.TB, names ...string) *database.BindManager {
	t.Helper()
	return newManager(t, func(name string) database.ConnectionConfig { return SQLiteConfig(t, name) }, names)
}

// NewMemoryManager is NewManager with in-memory binds.
func NewMemoryManager(t testing.TB, names ...string) *database.BindManager {
	t.Helper()
	return newManager(t, func(string) database.ConnectionConfig { return MemoryConfig() }, names)
}

func newManager(t testing.TB, conn func(name string) database.ConnectionConfig, names []string) *database.BindManager {
	t.Helper()
	if len(names) == 0 {
		names = []string{database.DefaultBindName}
	}
	cfg := &database.Config{
		Binds:   make(map[string]database.ConnectionConfig, len(names)),
		Migrate: database.MigrateConfig{CreateTablesOnStartup: true},
	}
	for _, name := range names {
		cfg.Binds[name] = conn(name)
	}
	m, err := database.NewBindManager(context.Background(), cfg,
		database.WithLogger(database.NopLogger()),
		database.WithModels(Models()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// NewBind returns the default bind of a fresh manager.
func NewBind(t testing.TB) *database.Bind {
	t.Helper()
	bind, err := NewManager(t).GetBind()
	require.NoError(t, err)
	return bind
}

// SeedUsers inserts n users named user-01 and up, with ages 1..n.
func SeedUsers(t testing.TB, bind *database.Bind, n int) []*User {
	t.Helper()
	users := make([]*User, n)
	for i := range users {
		users[i] = &User{
			Name:  fmt.Sprintf("user-%02d", i+1),
			Email: fmt.Sprintf("user-%02d@example.com", i+1),
			Age:   i + 1,
		}
	}
	if n == 0 {
		return users
	}
	_, err := bind.DB().NewInsert().Model(&users).Exec(context.Background())
	require.NoError(t, err)
	return users
}
