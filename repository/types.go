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

	"github.com/tomoncle/binder/database"
	"github.com/tomoncle/binder/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// CrudRepository defines basic CRUD operations for a generic entity type.
// Composite primary keys are passed as []any in key order or as a
// map[string]any keyed by column.
type CrudRepository[T any] interface {
	Get(ctx context.Context, id any) (*T, error)

	GetMany(ctx context.Context, ids []any) ([]*T, error)

	Save(ctx context.Context, entity *T) (*T, error)

	SaveMany(ctx context.Context, entities []*T) ([]*T, error)

	Create(ctx context.Context, entity ...*T) error

	Update(ctx context.Context, entity *T) error

	Delete(ctx context.Context, entity *T) error

	DeleteMany(ctx context.Context, entities []*T) error

	DeleteByID(ctx context.Context, id any) error
}

// QueryRepository defines filtered lookups.
type QueryRepository[T any] interface {
	Find(ctx context.Context, params types.SearchParams, orderBy ...types.OrderBy) ([]*T, error)
	FindOne(ctx context.Context, params types.SearchParams) (*T, error)
	List(ctx context.Context, filter *types.QueryFilter, orderBy ...types.OrderBy) ([]*T, error)
	Count(ctx context.Context, params types.SearchParams) (int, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	PaginatedFind(ctx context.Context, req types.PageRequest) (*types.PaginatedResult[T], error)
	CursorPaginatedFind(ctx context.Context, req types.CursorPageRequest) (*types.CursorPaginatedResult[T], error)
}

// Repository combines CRUD, query and pagination operations and exposes Bun
// query builders bound to the repository's current connection.
type Repository[T any] interface {
	CrudRepository[T]
	QueryRepository[T]
	PageQueryRepository[T]

	// Bind is the bind every operation runs against.
	Bind() *database.Bind
	// Session is the external session, nil for a repository that opens a
	// session per call.
	Session() *database.Session
	// WithSession returns a copy of the repository running on session.
	WithSession(session *database.Session) (Repository[T], error)
	Table() *schema.Table
	MaxQueryLimit() int

	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}
