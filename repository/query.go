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
	"reflect"
	"sort"

	"github.com/pkg/errors"
	"github.com/tomoncle/binder/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type columnValue struct {
	column string
	value  any
}

type whereable[Q any] interface {
	Where(query string, args ...interface{}) Q
}

func whereColumns[Q whereable[Q]](q Q, values []columnValue) Q {
	for _, cv := range values {
		q = q.Where("?TableAlias.? = ?", bun.Ident(cv.column), cv.value)
	}
	return q
}

// pkValues pairs id with the primary key columns. A single column key takes
// the value itself; composite keys take []any in key order or a map keyed by
// column name.
func (r *baseRepositoryImpl[T]) pkValues(id any) ([]columnValue, error) {
	pks := r.table.PKs
	if id == nil {
		return nil, errors.Wrap(ErrInvalidPrimaryKey, "id cannot be nil")
	}
	switch v := id.(type) {
	case map[string]any:
		if len(v) != len(pks) {
			return nil, errors.Wrapf(ErrInvalidPrimaryKey, "%s expects %d key columns, got %d", r.table.TypeName, len(pks), len(v))
		}
		out := make([]columnValue, 0, len(pks))
		for _, pk := range pks {
			val, ok := v[pk.Name]
			if !ok {
				return nil, errors.Wrapf(ErrInvalidPrimaryKey, "missing key column %s", pk.Name)
			}
			out = append(out, columnValue{pk.Name, val})
		}
		return out, nil
	case []any:
		if len(v) != len(pks) {
			return nil, errors.Wrapf(ErrInvalidPrimaryKey, "%s expects %d key columns, got %d", r.table.TypeName, len(pks), len(v))
		}
		out := make([]columnValue, len(pks))
		for i, pk := range pks {
			out[i] = columnValue{pk.Name, v[i]}
		}
		return out, nil
	default:
		if len(pks) != 1 {
			return nil, errors.Wrapf(ErrInvalidPrimaryKey, "%s has a composite primary key, pass []any or map[string]any", r.table.TypeName)
		}
		return []columnValue{{pks[0].Name, id}}, nil
	}
}

func (r *baseRepositoryImpl[T]) field(column string) (*schema.Field, error) {
	f, ok := r.table.FieldMap[column]
	if !ok {
		return nil, errors.Wrapf(ErrUnmappedProperty, "%s has no column %q", r.table.TypeName, column)
	}
	return f, nil
}

func (r *baseRepositoryImpl[T]) checkColumns(params types.SearchParams, orderBy []types.OrderBy) error {
	for column := range params {
		if _, err := r.field(column); err != nil {
			return err
		}
	}
	for _, o := range orderBy {
		if _, err := r.field(o.Column); err != nil {
			return err
		}
		if !o.Direction.IsValid() {
			return errors.Wrapf(ErrUnmappedProperty, "invalid sort direction for column %q", o.Column)
		}
	}
	return nil
}

// filtered applies equality filters in column order, then the raw filter.
// Columns must have been checked already.
func (r *baseRepositoryImpl[T]) filtered(q *bun.SelectQuery, params types.SearchParams, filter *types.QueryFilter) *bun.SelectQuery {
	columns := make([]string, 0, len(params))
	for column := range params {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	for _, column := range columns {
		value := params[column]
		switch {
		case isNil(value):
			q = q.Where("?TableAlias.? IS NULL", bun.Ident(column))
		case isList(value):
			q = q.Where("?TableAlias.? IN (?)", bun.Ident(column), bun.In(value))
		default:
			q = q.Where("?TableAlias.? = ?", bun.Ident(column), value)
		}
	}
	if filter != nil && filter.Schema != "" {
		q = q.Where(filter.Schema, filter.Args...)
	}
	return q
}

// ordered applies orderBy, or the primary key ascending when empty.
func (r *baseRepositoryImpl[T]) ordered(q *bun.SelectQuery, orderBy []types.OrderBy) *bun.SelectQuery {
	if len(orderBy) == 0 {
		orderBy = make([]types.OrderBy, len(r.table.PKs))
		for i, pk := range r.table.PKs {
			orderBy[i] = types.Asc(pk.Name)
		}
	}
	for _, o := range orderBy {
		q = q.OrderExpr("?TableAlias.? "+o.Direction.String(), bun.Ident(o.Column))
	}
	return q
}

// isNil reports untyped nil and nil pointers.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

func isList(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	default:
		return false
	}
}

// sanitisedLimit caps limit at the max query limit. Values below 1 mean the
// max query limit.
func (r *baseRepositoryImpl[T]) sanitisedLimit(limit int) int {
	if limit < 1 || limit > r.opts.maxQueryLimit {
		return r.opts.maxQueryLimit
	}
	return limit
}

func columnOf[T any](f *schema.Field, entity *T) *types.CursorReference {
	return &types.CursorReference{
		Column: f.Name,
		Value:  f.Value(reflect.ValueOf(entity).Elem()).Interface(),
	}
}
