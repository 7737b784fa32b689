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
	"slices"

	"github.com/pkg/errors"
	"github.com/tomoncle/binder/database"
	"github.com/tomoncle/binder/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// PaginatedFind returns one limit/offset page. ItemsPerPage is capped at the
// max query limit and rows default to primary key order.
func (r *baseRepositoryImpl[T]) PaginatedFind(ctx context.Context, req types.PageRequest) (*types.PaginatedResult[T], error) {
	if err := r.checkColumns(req.SearchParams, req.OrderBy); err != nil {
		return nil, err
	}
	perPage := r.sanitisedLimit(req.ItemsPerPage)
	page := req.GetPage()

	entities := make([]*T, 0)
	var total int
	err := r.run(ctx, true, func(ctx context.Context, db bun.IDB) error {
		var err error
		total, err = r.filtered(db.NewSelect().Model((*T)(nil)), req.SearchParams, req.Filter).Count(ctx)
		if err != nil || total == 0 {
			return err
		}
		return r.ordered(r.filtered(db.NewSelect().Model(&entities), req.SearchParams, req.Filter), req.OrderBy).
			Offset((page - 1) * perPage).
			Limit(perPage).
			Scan(ctx)
	})
	if err != nil {
		return nil, r.fail("paginated find", err)
	}
	return &types.PaginatedResult[T]{
		Items:    entities,
		PageInfo: types.NewPageInfo(page, perPage, total, len(entities)),
	}, nil
}

// CursorPaginatedFind returns the page after req.Cursor, or before it when
// req.Before is set, ordered ascending by the cursor column. Without a cursor
// the first page in primary key order is returned.
func (r *baseRepositoryImpl[T]) CursorPaginatedFind(ctx context.Context, req types.CursorPageRequest) (*types.CursorPaginatedResult[T], error) {
	if err := r.checkColumns(req.SearchParams, nil); err != nil {
		return nil, err
	}
	perPage := r.sanitisedLimit(req.ItemsPerPage)

	var column *schema.Field
	if req.Cursor == nil {
		if len(r.table.PKs) != 1 {
			return nil, errors.Wrapf(database.ErrInvalidModel, "%s: cursor pagination without a cursor needs a single column primary key", r.table.TypeName)
		}
		column = r.table.PKs[0]
	} else {
		f, err := r.field(req.Cursor.Column)
		if err != nil {
			return nil, err
		}
		column = f
	}

	result := &types.CursorPaginatedResult[T]{
		Items:    make([]*T, 0),
		PageInfo: types.CursorPageInfo{ItemsPerPage: perPage},
	}
	var hasNext, hasPrev bool
	err := r.run(ctx, true, func(ctx context.Context, db bun.IDB) error {
		base := func(model interface{}) *bun.SelectQuery {
			return r.filtered(db.NewSelect().Model(model), req.SearchParams, req.Filter)
		}
		col := bun.Ident(column.Name)

		total, err := base((*T)(nil)).Count(ctx)
		if err != nil {
			return err
		}
		result.PageInfo.TotalItems = total

		var items []*T
		switch {
		case req.Cursor == nil:
			err = base(&items).
				OrderExpr("?TableAlias.? ASC", col).
				Limit(perPage + 1).
				Scan(ctx)
			if err != nil {
				return err
			}
			hasNext = len(items) > perPage
			if hasNext {
				items = items[:perPage]
			}
		case !req.Before:
			hasPrev, err = base((*T)(nil)).Where("?TableAlias.? <= ?", col, req.Cursor.Value).Exists(ctx)
			if err != nil {
				return err
			}
			err = base(&items).
				Where("?TableAlias.? > ?", col, req.Cursor.Value).
				OrderExpr("?TableAlias.? ASC", col).
				Limit(perPage + 1).
				Scan(ctx)
			if err != nil {
				return err
			}
			hasNext = len(items) > perPage
			if hasNext {
				items = items[:perPage]
			}
		default:
			hasNext, err = base((*T)(nil)).Where("?TableAlias.? >= ?", col, req.Cursor.Value).Exists(ctx)
			if err != nil {
				return err
			}
			err = base(&items).
				Where("?TableAlias.? < ?", col, req.Cursor.Value).
				OrderExpr("?TableAlias.? DESC", col).
				Limit(perPage + 1).
				Scan(ctx)
			if err != nil {
				return err
			}
			hasPrev = len(items) > perPage
			if hasPrev {
				items = items[:perPage]
			}
			slices.Reverse(items)
		}
		if items != nil {
			result.Items = items
		}
		return nil
	})
	if err != nil {
		return nil, r.fail("cursor paginated find", err)
	}

	if len(result.Items) == 0 {
		return result, nil
	}
	result.PageInfo.HasNextPage = hasNext
	result.PageInfo.HasPreviousPage = hasPrev
	result.PageInfo.StartCursor = columnOf(column, result.Items[0])
	result.PageInfo.EndCursor = columnOf(column, result.Items[len(result.Items)-1])
	return result, nil
}
