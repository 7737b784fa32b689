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

package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/binder/database"
	"github.com/tomoncle/binder/internal/testsupport"
	"github.com/tomoncle/binder/repository"
	"github.com/uptrace/bun"
)

type User = testsupport.User

type Membership = testsupport.Membership

type keyless struct {
	bun.BaseModel `bun:"table:keyless"`

	Name string `bun:"name"`
}

func newUserRepo(t *testing.T, opts ...repository.Option) (*database.Bind, repository.Repository[User]) {
	t.Helper()
	bind := testsupport.NewBind(t)
	repo, err := repository.New[User](bind, opts...)
	require.NoError(t, err)
	return bind, repo
}

func TestNewRepository(t *testing.T) {
	bind := testsupport.NewBind(t)

	_, err := repository.New[User](nil)
	assert.ErrorIs(t, err, database.ErrInvalidConfig)
	_, err = repository.NewWithSession[User](nil)
	assert.ErrorIs(t, err, database.ErrInvalidConfig)
	_, err = repository.New[keyless](bind)
	assert.ErrorIs(t, err, database.ErrInvalidModel)
	_, err = repository.New[int](bind)
	assert.ErrorIs(t, err, database.ErrInvalidModel)

	repo, err := repository.New[User](bind, repository.WithMaxQueryLimit(7), repository.WithMaxQueryLimit(0))
	require.NoError(t, err)
	assert.Same(t, bind, repo.Bind())
	assert.Nil(t, repo.Session())
	assert.Equal(t, 7, repo.MaxQueryLimit())
	assert.Equal(t, "users", repo.Table().Name)
	assert.Equal(t, "sqlite", repo.Dialect().Name().String())

	defaults, err := repository.New[User](bind)
	require.NoError(t, err)
	assert.Equal(t, repository.DefaultMaxQueryLimit, defaults.MaxQueryLimit())
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	bind, repo := newUserRepo(t)
	users := testsupport.SeedUsers(t, bind, 3)

	got, err := repo.Get(ctx, users[1].ID)
	require.NoError(t, err)
	assert.Equal(t, users[1], got)

	_, err = repo.Get(ctx, int64(999))
	assert.ErrorIs(t, err, repository.ErrModelNotFound)
	_, err = repo.Get(ctx, nil)
	assert.ErrorIs(t, err, repository.ErrInvalidPrimaryKey)

	many, err := repo.GetMany(ctx, []any{users[2].ID, int64(999), users[0].ID})
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, users[0].ID, many[0].ID)
	assert.Equal(t, users[2].ID, many[1].ID)

	none, err := repo.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	_, repo := newUserRepo(t)

	saved, err := repo.Save(ctx, &User{Name: "alice", Email: "alice@example.com", Age: 30})
	require.NoError(t, err)
	require.NotZero(t, saved.ID)

	saved.Age = 31
	saved.Name = "alice b."
	_, err = repo.Save(ctx, saved)
	require.NoError(t, err)

	got, err := repo.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice b.", got.Name)
	assert.Equal(t, 31, got.Age)

	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.Save(ctx, &User{Name: "impostor", Email: "alice@example.com"})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	_, err = repo.Save(ctx, nil)
	assert.ErrorIs(t, err, database.ErrInvalidModel)

	explicit, err := repo.Save(ctx, &User{ID: 100, Name: "bob", Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), explicit.ID)
}

func TestSaveManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	_, repo := newUserRepo(t)

	saved, err := repo.SaveMany(ctx, []*User{
		{Name: "a", Email: "a@example.com"},
		{Name: "b", Email: "b@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.NotEqual(t, saved[0].ID, saved[1].ID)

	_, err = repo.SaveMany(ctx, []*User{
		{Name: "c", Email: "c@example.com"},
		{Name: "dup", Email: "a@example.com"},
	})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.SaveMany(ctx, []*User{nil})
	assert.ErrorIs(t, err, database.ErrInvalidModel)
}

func TestCreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	_, repo := newUserRepo(t)

	a := &User{Name: "a", Email: "a@example.com"}
	b := &User{Name: "b", Email: "b@example.com"}
	require.NoError(t, repo.Create(ctx, a, b))
	assert.NotZero(t, a.ID)
	assert.NotZero(t, b.ID)
	require.NoError(t, repo.Create(ctx))

	err := repo.Create(ctx, &User{Name: "dup", Email: "a@example.com"})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	err = repo.Create(ctx, &User{ID: a.ID, Name: "same id", Email: "other@example.com"})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	b.Age = 40
	require.NoError(t, repo.Update(ctx, b))
	got, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Age)

	err = repo.Update(ctx, &User{ID: 999, Name: "ghost", Email: "ghost@example.com"})
	assert.ErrorIs(t, err, repository.ErrModelNotFound)
	assert.ErrorIs(t, repo.Update(ctx, nil), database.ErrInvalidModel)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	bind, repo := newUserRepo(t)
	users := testsupport.SeedUsers(t, bind, 4)

	require.NoError(t, repo.Delete(ctx, users[0]))
	assert.ErrorIs(t, repo.Delete(ctx, users[0]), repository.ErrModelNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, nil), database.ErrInvalidModel)

	require.NoError(t, repo.DeleteByID(ctx, users[1].ID))
	assert.ErrorIs(t, repo.DeleteByID(ctx, users[1].ID), repository.ErrModelNotFound)

	err := repo.DeleteMany(ctx, []*User{users[2], users[0]})
	assert.ErrorIs(t, err, repository.ErrModelNotFound)
	_, err = repo.Get(ctx, users[2].ID)
	require.NoError(t, err, "failed batch must roll back")

	require.NoError(t, repo.DeleteMany(ctx, []*User{users[2], users[3]}))
	require.NoError(t, repo.DeleteMany(ctx, nil))
	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompositePrimaryKey(t *testing.T) {
	ctx := context.Background()
	bind := testsupport.NewBind(t)
	repo, err := repository.New[Membership](bind)
	require.NoError(t, err)

	_, err = repo.Save(ctx, &Membership{UserID: 1, GroupID: 2, Role: "member"})
	require.NoError(t, err)
	_, err = repo.Save(ctx, &Membership{UserID: 1, GroupID: 2, Role: "owner"})
	require.NoError(t, err)
	_, err = repo.Save(ctx, &Membership{UserID: 1, GroupID: 3, Role: "member"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, []any{int64(1), int64(2)})
	require.NoError(t, err)
	assert.Equal(t, "owner", got.Role)

	got, err = repo.Get(ctx, map[string]any{"group_id": 3, "user_id": 1})
	require.NoError(t, err)
	assert.Equal(t, "member", got.Role)

	_, err = repo.Get(ctx, 1)
	assert.ErrorIs(t, err, repository.ErrInvalidPrimaryKey)
	_, err = repo.Get(ctx, []any{1})
	assert.ErrorIs(t, err, repository.ErrInvalidPrimaryKey)
	_, err = repo.Get(ctx, map[string]any{"user_id": 1, "role": "x"})
	assert.ErrorIs(t, err, repository.ErrInvalidPrimaryKey)
	_, err = repo.GetMany(ctx, []any{1})
	assert.ErrorIs(t, err, repository.ErrInvalidPrimaryKey)

	require.NoError(t, repo.DeleteByID(ctx, map[string]any{"user_id": 1, "group_id": 2}))
	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepositoryOnExternalSession(t *testing.T) {
	ctx := context.Background()
	bind, repo := newUserRepo(t)

	session := bind.NewSession()
	t.Cleanup(func() { _ = session.Close() })
	scoped, err := repo.WithSession(session)
	require.NoError(t, err)
	assert.Same(t, session, scoped.Session())
	assert.Nil(t, repo.Session())

	// Outside a transaction the session runs in autocommit mode.
	_, err = scoped.Save(ctx, &User{Name: "auto", Email: "auto@example.com"})
	require.NoError(t, err)

	require.NoError(t, session.Begin(ctx))
	_, err = scoped.Save(ctx, &User{Name: "tx", Email: "tx@example.com"})
	require.NoError(t, err)
	n, err := scoped.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, session.Rollback())

	n, err = repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.WithSession(nil)
	assert.ErrorIs(t, err, database.ErrInvalidConfig)
}

func TestQueryBuilders(t *testing.T) {
	ctx := context.Background()
	bind, repo := newUserRepo(t)
	testsupport.SeedUsers(t, bind, 3)

	var names []string
	err := repo.NewSelect().Model((*User)(nil)).Column("name").Order("id DESC").Scan(ctx, &names)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-03", "user-02", "user-01"}, names)

	_, err = repo.NewUpdate().Model((*User)(nil)).Set("age = age + 10").Where("id = 1").Exec(ctx)
	require.NoError(t, err)
	got, err := repo.Get(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, 11, got.Age)
}
