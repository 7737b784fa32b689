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
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

var (
	// ErrNotInitializedBind is returned when a bind name was never configured.
	ErrNotInitializedBind = errors.New("bind not initialized")
	// ErrUnsupportedBind is returned when a nil or closed bind is used.
	ErrUnsupportedBind = errors.New("unsupported bind")
	// ErrInvalidConfig is returned for configuration that cannot be applied.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidModel is returned for types bun cannot map to a table.
	ErrInvalidModel = errors.New("invalid model")
	// ErrSessionActive is returned by Begin on a session already in a transaction.
	ErrSessionActive = errors.New("session already has an active transaction")
	// ErrNoActiveSession is returned by Commit/Rollback without a transaction.
	ErrNoActiveSession = errors.New("session has no active transaction")
	// ErrSessionClosed is returned by Begin on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
)

func (e SQLError) String() string {
	switch e {
	case NoRowsErr:
		return "no_rows"
	case NoIndexErr:
		return "no_index"
	case NoColumnErr:
		return "no_column"
	case ExistIndexErr:
		return "exist_index"
	case ExistColumnErr:
		return "exist_column"
	case NoTableErr:
		return "no_table"
	case ExistTableErr:
		return "exist_table"
	case DuplicateKeyErr:
		return "duplicate_key"
	case NotNullViolationErr:
		return "not_null_violation"
	case ForeignKeyViolationErr:
		return "foreign_key_violation"
	case CheckConstraintViolationErr:
		return "check_constraint_violation"
	case DataTruncatedErr:
		return "data_truncated"
	case InvalidTypeCastErr:
		return "invalid_type_cast"
	default:
		return "unknown"
	}
}

// IsSqlError classifies a driver error. The first result is false when err
// does not look like a database error at all.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}

	var mysqlErr *mysql.MySQLError
	if stderrors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1146:
			return true, NoTableErr
		case 1050:
			return true, ExistTableErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265, 1406:
			return true, DataTruncatedErr
		default:
			return true, UnknownErr
		}
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42703":
			return true, NoColumnErr
		case "42704":
			return true, NoIndexErr
		case "42P01":
			return true, NoTableErr
		case "42P07":
			return true, ExistTableErr
		case "42701":
			return true, ExistColumnErr
		case "23505":
			return true, DuplicateKeyErr
		case "23502":
			return true, NotNullViolationErr
		case "23503":
			return true, ForeignKeyViolationErr
		case "23514":
			return true, CheckConstraintViolationErr
		case "22001":
			return true, DataTruncatedErr
		case "42804":
			return true, InvalidTypeCastErr
		default:
			return true, UnknownErr
		}
	}

	// sqlite drivers (and wrapped errors) only expose messages.
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "sqlstate 42703"),
		strings.Contains(s, "undefined column"),
		strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "sqlstate 42704"),
		strings.Contains(s, "no such index"),
		strings.Contains(s, "does not exist") && strings.Contains(s, "index"):
		return true, NoIndexErr
	case strings.Contains(s, "sqlstate 42p01"),
		strings.Contains(s, "undefined table"),
		strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "index"):
		return true, ExistIndexErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "table"),
		strings.Contains(s, "relation") && strings.Contains(s, "already exists"):
		return true, ExistTableErr
	case strings.Contains(s, "duplicate key value"),
		strings.Contains(s, "unique constraint failed"),
		strings.Contains(s, "duplicate entry"),
		strings.Contains(s, "sqlstate 23505"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not-null constraint"),
		strings.Contains(s, "sqlstate 23502"),
		strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key violation"),
		strings.Contains(s, "foreign key constraint failed"),
		strings.Contains(s, "sqlstate 23503"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint"),
		strings.Contains(s, "sqlstate 23514"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "string data right truncation"),
		strings.Contains(s, "sqlstate 22001"),
		strings.Contains(s, "data truncated"):
		return true, DataTruncatedErr
	case strings.Contains(s, "datatype mismatch"),
		strings.Contains(s, "sqlstate 42804"):
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}
