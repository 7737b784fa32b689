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


package repository

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/binder/internal/testsupport"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
)

func TestUpsertModeFor(t *testing.T) {
	// sql.Open does not dial, so no server is needed.
	sqlDB, err := sql.Open("mysql", "u:p@tcp(127.0.0.1:1)/x")
	require.NoError(t, err)
	mysqlDB := bun.NewDB(sqlDB, mysqldialect.New())
	t.Cleanup(func() { _ = mysqlDB.Close() })

	users := mysqlDB.Table(reflect.TypeOf(testsupport.User{}))
	memberships := mysqlDB.Table(reflect.TypeOf(testsupport.Membership{}))
	assert.True(t, hasSecondaryUnique(users))
	assert.False(t, hasSecondaryUnique(memberships))
	assert.Equal(t, upsertModeFallback, upsertModeFor(mysqlDB, users))
	assert.Equal(t, upsertModeDuplicateKey, upsertModeFor(mysqlDB, memberships))

	sqliteDB := testsupport.NewBind(t).DB()
	assert.Equal(t, upsertModeOnConflict, upsertModeFor(sqliteDB, users))
}

func TestUpsertFallback(t *testing.T) {
	ctx := context.Background()
	bind := testsupport.NewBind(t)
	repo, err := newRepository[testsupport.User](bind, nil)
	require.NoError(t, err)
	db := bind.DB()

	alice := &testsupport.User{Name: "alice", Email: "alice@example.com", Age: 30}
	require.NoError(t, repo.upsertFallback(ctx, db, alice))
	require.NotZero(t, alice.ID)

	alice.Age = 31
	require.NoError(t, repo.upsertFallback(ctx, db, alice))
	got, err := repo.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, got.Age)

	// A unique column clash on a new row is reported, not merged.
	err = repo.upsertFallback(ctx, db, &testsupport.User{Name: "impostor", Email: "alice@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, repo.fail("save", err), ErrAlreadyExists)

	got, err = repo.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
