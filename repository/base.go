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
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/tomoncle/binder/database"
	"github.com/tomoncle/binder/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// DefaultMaxQueryLimit caps the page size of paginated queries.
const DefaultMaxQueryLimit = 50

// Option customizes a repository.
type Option func(*options)

type options struct {
	maxQueryLimit int
	logger        database.Logger
}

// WithMaxQueryLimit overrides DefaultMaxQueryLimit. Values below 1 are
// ignored.
func WithMaxQueryLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.maxQueryLimit = limit
		}
	}
}

func WithLogger(logger database.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type baseRepositoryImpl[T any] struct {
	bind    *database.Bind
	session *database.Session
	table   *schema.Table
	opts    options
}

// New returns a repository that opens a new session, and so a new
// transaction, for every call.
func New[T any](bind *database.Bind, opts ...Option) (Repository[T], error) {
	if bind == nil {
		return nil, errors.Wrap(database.ErrInvalidConfig, "bind cannot be nil")
	}
	return newRepository[T](bind, nil, opts...)
}

// NewWithSession returns a repository that runs every call on session and
// leaves committing to its owner.
func NewWithSession[T any](session *database.Session, opts ...Option) (Repository[T], error) {
	if session == nil || session.Bind() == nil {
		return nil, errors.Wrap(database.ErrInvalidConfig, "session cannot be nil")
	}
	return newRepository[T](session.Bind(), session, opts...)
}

func newRepository[T any](bind *database.Bind, session *database.Session, opts ...Option) (*baseRepositoryImpl[T], error) {
	table, err := bind.Mapper().Table((*T)(nil))
	if err != nil {
		return nil, err
	}
	if len(table.PKs) == 0 {
		return nil, errors.Wrapf(database.ErrInvalidModel, "%s has no primary key", table.TypeName)
	}
	o := options{maxQueryLimit: DefaultMaxQueryLimit, logger: bind.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	return &baseRepositoryImpl[T]{bind: bind, session: session, table: table, opts: o}, nil
}

func (r *baseRepositoryImpl[T]) Bind() *database.Bind { return r.bind }

func (r *baseRepositoryImpl[T]) Session() *database.Session { return r.session }

func (r *baseRepositoryImpl[T]) Table() *schema.Table { return r.table }

func (r *baseRepositoryImpl[T]) MaxQueryLimit() int { return r.opts.maxQueryLimit }

func (r *baseRepositoryImpl[T]) WithSession(session *database.Session) (Repository[T], error) {
	if session == nil || session.Bind() == nil {
		return nil, errors.Wrap(database.ErrInvalidConfig, "session cannot be nil")
	}
	clone := *r
	clone.bind = session.Bind()
	clone.session = session
	return &clone, nil
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.bind.DB().Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.idb().NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.idb().NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.idb().NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.idb().NewDelete() }

func (r *baseRepositoryImpl[T]) idb() bun.IDB {
	if r.session != nil {
		return r.session.IDB()
	}
	return r.bind.DB()
}

// run executes fn on the external session, or in a fresh session that is
// committed unless readOnly.
func (r *baseRepositoryImpl[T]) run(ctx context.Context, readOnly bool, fn database.TxFunc) error {
	if r.session != nil {
		return fn(ctx, r.session.IDB())
	}
	return r.bind.NewSession().Run(ctx, readOnly, fn)
}

func (r *baseRepositoryImpl[T]) fail(op string, err error) error {
	err = translateError(err, "%s %s", op, r.table.TypeName)
	r.opts.logger.Debug("Repository operation failed", "bind", r.bind.Name(), "model", r.table.TypeName, "op", op, "error", err)
	return err
}

func copyEntities[T any](entity ...*T) []*T {
	entities := make([]*T, len(entity))
	copy(entities, entity)
	return entities
}

func (r *baseRepositoryImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	pk, err := r.pkValues(id)
	if err != nil {
		return nil, err
	}
	entity := new(T)
	err = r.run(ctx, true, func(ctx context.Context, db bun.IDB) error {
		return whereColumns(db.NewSelect().Model(entity), pk).Scan(ctx)
	})
	if err != nil {
		return nil, r.fail("get", err)
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) GetMany(ctx context.Context, ids []any) ([]*T, error) {
	if len(r.table.PKs) != 1 {
		return nil, errors.Wrapf(ErrInvalidPrimaryKey, "%s has a composite primary key", r.table.TypeName)
	}
	entities := make([]*T, 0, len(ids))
	if len(ids) == 0 {
		return entities, nil
	}
	pk := r.table.PKs[0]
	err := r.run(ctx, true, func(ctx context.Context, db bun.IDB) error {
		return db.NewSelect().
			Model(&entities).
			Where("?TableAlias.? IN (?)", bun.Ident(pk.Name), bun.In(ids)).
			OrderExpr("?TableAlias.? ASC", bun.Ident(pk.Name)).
			Scan(ctx)
	})
	if err != nil {
		return nil, r.fail("get many", err)
	}
	return entities, nil
}

// Save inserts entity or, when a row with the same primary key exists,
// updates it.
func (r *baseRepositoryImpl[T]) Save(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, errors.Wrap(database.ErrInvalidModel, "entity cannot be nil")
	}
	err := r.run(ctx, false, func(ctx context.Context, db bun.IDB) error {
		return r.upsert(ctx, db, entity)
	})
	if err != nil {
		return nil, r.fail("save", err)
	}
	return entity, nil
}

// SaveMany saves every entity in one transaction.
func (r *baseRepositoryImpl[T]) SaveMany(ctx context.Context, entities []*T) ([]*T, error) {
	for _, entity := range entities {
		if entity == nil {
			return nil, errors.Wrap(database.ErrInvalidModel, "entity cannot be nil")
		}
	}
	err := r.run(ctx, false, func(ctx context.Context, db bun.IDB) error {
		for _, entity := range entities {
			if err := r.upsert(ctx, db, entity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, r.fail("save many", err)
	}
	return entities, nil
}

// Create inserts the entities. A primary or unique key conflict yields
// ErrAlreadyExists.
func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := copyEntities(entity...)
	err := r.run(ctx, false, func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewInsert().Model(&entities).Exec(ctx)
		return err
	})
	if err != nil {
		return r.fail("create", err)
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.Wrap(database.ErrInvalidModel, "entity cannot be nil")
	}
	err := r.run(ctx, false, func(ctx context.Context, db bun.IDB) error {
		res, err := db.NewUpdate().Model(entity).WherePK().Exec(ctx)
		return requireAffected(res, err)
	})
	if err != nil {
		return r.fail("update", err)
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.Wrap(database.ErrInvalidModel, "entity cannot be nil")
	}
	err := r.run(ctx, false, func(ctx context.Context, db bun.IDB) error {
		res, err := db.NewDelete().Model(entity).WherePK().Exec(ctx)
		return requireAffected(res, err)
	})
	if err != nil {
		return r.fail("delete", err)
	}
	return nil
}

// DeleteMany deletes every entity in one transaction. A missing row rolls
// the whole batch back.
func (r *baseRepositoryImpl[T]) DeleteMany(ctx context.Context, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	err := r.run(ctx, false, func(ctx context.Context, db bun.IDB) error {
		for _, entity := range entities {
			if entity == nil {
				return errors.Wrap(database.ErrInvalidModel, "entity cannot be nil")
			}
			res, err := db.NewDelete().Model(entity).WherePK().Exec(ctx)
			if err := requireAffected(res, err); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r.fail("delete many", err)
	}
	return nil
}

func (r *baseRepositoryImpl[T]) DeleteByID(ctx context.Context, id any) error {
	pk, err := r.pkValues(id)
	if err != nil {
		return err
	}
	err = r.run(ctx, false, func(ctx context.Context, db bun.IDB) error {
		q := db.NewDelete().Model((*T)(nil))
		for _, cv := range pk {
			q = q.Where("? = ?", bun.Ident(cv.column), cv.value)
		}
		res, err := q.Exec(ctx)
		return requireAffected(res, err)
	})
	if err != nil {
		return r.fail("delete by id", err)
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, params types.SearchParams, orderBy ...types.OrderBy) ([]*T, error) {
	return r.find(ctx, "find", params, nil, orderBy, 0)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter, orderBy ...types.OrderBy) ([]*T, error) {
	return r.find(ctx, "list", nil, filter, orderBy, 0)
}

// FindOne returns the only row matching params.
func (r *baseRepositoryImpl[T]) FindOne(ctx context.Context, params types.SearchParams) (*T, error) {
	entities, err := r.find(ctx, "find one", params, nil, nil, 2)
	if err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, errors.Wrapf(ErrModelNotFound, "find one %s", r.table.TypeName)
	case 1:
		return entities[0], nil
	default:
		return nil, errors.Wrapf(ErrMultipleResults, "find one %s", r.table.TypeName)
	}
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, params types.SearchParams) (int, error) {
	if err := r.checkColumns(params, nil); err != nil {
		return 0, err
	}
	var total int
	err := r.run(ctx, true, func(ctx context.Context, db bun.IDB) error {
		var err error
		total, err = r.filtered(db.NewSelect().Model((*T)(nil)), params, nil).Count(ctx)
		return err
	})
	if err != nil {
		return 0, r.fail("count", err)
	}
	return total, nil
}

func (r *baseRepositoryImpl[T]) find(ctx context.Context, op string, params types.SearchParams, filter *types.QueryFilter, orderBy []types.OrderBy, limit int) ([]*T, error) {
	if err := r.checkColumns(params, orderBy); err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	err := r.run(ctx, true, func(ctx context.Context, db bun.IDB) error {
		q := r.ordered(r.filtered(db.NewSelect().Model(&entities), params, filter), orderBy)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Scan(ctx)
	})
	if err != nil {
		return nil, r.fail(op, err)
	}
	return entities, nil
}

func requireAffected(res interface{ RowsAffected() (int64, error) }, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrModelNotFound
	}
	return nil
}

type upsertMode int

const (
	upsertModeOnConflict upsertMode = iota
	upsertModeDuplicateKey
	upsertModeFallback
)

// upsertModeFor picks how Save writes a row. ON DUPLICATE KEY UPDATE fires on
// any unique index, so tables with unique columns beside the primary key use
// the fallback to keep conflicts on those columns reported.
func upsertModeFor(db *bun.DB, table *schema.Table) upsertMode {
	switch {
	case db.HasFeature(feature.InsertOnConflict):
		return upsertModeOnConflict
	case db.HasFeature(feature.InsertOnDuplicateKey) && !hasSecondaryUnique(table):
		return upsertModeDuplicateKey
	default:
		return upsertModeFallback
	}
}

func hasSecondaryUnique(table *schema.Table) bool {
	for _, fields := range table.Unique {
		for _, f := range fields {
			if !f.IsPK {
				return true
			}
		}
	}
	return false
}

func (r *baseRepositoryImpl[T]) upsert(ctx context.Context, db bun.IDB, entity *T) error {
	switch upsertModeFor(r.bind.DB(), r.table) {
	case upsertModeOnConflict:
		return r.upsertOnConflict(ctx, db, entity)
	case upsertModeDuplicateKey:
		return r.upsertOnDuplicateKey(ctx, db, entity)
	default:
		return r.upsertFallback(ctx, db, entity)
	}
}

// upsertOnConflict serves PostgreSQL and SQLite.
func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, db bun.IDB, entity *T) error {
	keys := make([]string, len(r.table.PKs))
	for i, pk := range r.table.PKs {
		keys[i] = string(pk.SQLName)
	}
	q := db.NewInsert().Model(entity)
	if len(r.table.DataFields) == 0 {
		q = q.On("CONFLICT (" + strings.Join(keys, ", ") + ") DO NOTHING")
	} else {
		q = q.On("CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE")
		for _, f := range r.table.DataFields {
			q = q.Set("? = EXCLUDED.?", bun.Ident(f.Name), bun.Ident(f.Name))
		}
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, db bun.IDB, entity *T) error {
	var queryArgs []string
	for _, f := range r.table.DataFields {
		queryArgs = append(queryArgs, fmt.Sprintf("%s = VALUES(%s)", f.SQLName, f.SQLName))
	}
	if len(queryArgs) == 0 {
		pk := r.table.PKs[0].SQLName
		queryArgs = append(queryArgs, fmt.Sprintf("%s = %s", pk, pk))
	}
	_, err := db.NewInsert().
		Model(entity).
		On("DUPLICATE KEY UPDATE " + strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

// upsertFallback updates by primary key and inserts when nothing matched.
func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, db bun.IDB, entity *T) error {
	res, err := db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	if err := requireAffected(res, err); err == nil {
		return nil
	} else if !errors.Is(err, ErrModelNotFound) {
		return err
	}
	_, err = db.NewInsert().Model(entity).Exec(ctx)
	return err
}
