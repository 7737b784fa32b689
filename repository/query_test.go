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
	"github.com/tomoncle/binder/internal/testsupport"
	"github.com/tomoncle/binder/repository"
	"github.com/tomoncle/binder/types"
)

func ages(users []*User) []int {
	out := make([]int, len(users))
	for i, u := range users {
		out[i] = u.Age
	}
	return out
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	bind, repo := newUserRepo(t)
	testsupport.SeedUsers(t, bind, 5)

	all, err := repo.Find(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ages(all))

	some, err := repo.Find(ctx, types.SearchParams{"age": []int{2, 4, 9}}, types.Desc("age"))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, ages(some))

	one, err := repo.Find(ctx, types.SearchParams{"name": "user-03", "age": 3})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "user-03@example.com", one[0].Email)

	none, err := repo.Find(ctx, types.SearchParams{"name": "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = repo.Find(ctx, types.SearchParams{"shoe_size": 9})
	assert.ErrorIs(t, err, repository.ErrUnmappedProperty)
	_, err = repo.Find(ctx, nil, types.Asc("shoe_size"))
	assert.ErrorIs(t, err, repository.ErrUnmappedProperty)
	_, err = repo.Find(ctx, nil, types.OrderBy{Column: "age", Direction: types.SortDirection(7)})
	assert.ErrorIs(t, err, repository.ErrUnmappedProperty)
}

func TestFindNullColumn(t *testing.T) {
	ctx := context.Background()
	bind, repo := newUserRepo(t)
	users := testsupport.SeedUsers(t, bind, 3)
	nick := "ace"
	users[1].Nickname = &nick
	require.NoError(t, repo.Update(ctx, users[1]))

	unset, err := repo.Find(ctx, types.SearchParams{"nickname": (*string)(nil)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, ages(unset))

	untyped, err := repo.Find(ctx, types.SearchParams{"nickname": nil})
	require.NoError(t, err)
	assert.Equal(t, ages(unset), ages(untyped))

	set, err := repo.Find(ctx, types.SearchParams{"nickname": &nick})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ages(set))
}

func TestFindOne(t *testing.T) {
	ctx := context.Background()
	bind, repo := newUserRepo(t)
	testsupport.SeedUsers(t, bind, 3)
	_, err := repo.Save(ctx, &User{Name: "user-01", Email: "twin@example.com", Age: 50})
	require.NoError(t, err)

	got, err := repo.FindOne(ctx, types.SearchParams{"email": "user-02@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Age)

	_, err = repo.FindOne(ctx, types.SearchParams{"name": "user-01"})
	assert.ErrorIs(t, err, repository.ErrMultipleResults)
	_, err = repo.FindOne(ctx, types.SearchParams{"name": "nobody"})
	assert.ErrorIs(t, err, repository.ErrModelNotFound)
	_, err = repo.FindOne(ctx, types.SearchParams{"nope": 1})
	assert.ErrorIs(t, err, repository.ErrUnmappedProperty)
}

func TestListAndCount(t *testing.T) {
	ctx := context.Background()
	bind, repo := newUserRepo(t)
	testsupport.SeedUsers(t, bind, 6)

	older, err := repo.List(ctx, types.NewQueryFilter("?TableAlias.age > ?", 3), types.Desc("age"))
	require.NoError(t, err)
	assert.Equal(t, []int{6, 5, 4}, ages(older))

	all, err := repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	n, err := repo.Count(ctx, types.SearchParams{"age": []int{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = repo.Count(ctx, types.SearchParams{"nope": 1})
	assert.ErrorIs(t, err, repository.ErrUnmappedProperty)
}
