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
	"github.com/pkg/errors"
	"github.com/tomoncle/binder/database"
)

var (
	// ErrModelNotFound is returned when no row matches a lookup or an update.
	ErrModelNotFound = errors.New("model not found")
	// ErrAlreadyExists is returned when an insert violates a unique key.
	ErrAlreadyExists = errors.New("model already exists")
	// ErrMultipleResults is returned by FindOne when more than one row matches.
	ErrMultipleResults = errors.New("multiple results found")
	// ErrUnmappedProperty is returned for filters and orderings on unknown columns.
	ErrUnmappedProperty = errors.New("unmapped property")
	// ErrInvalidPrimaryKey is returned when an id does not fit the model's primary key.
	ErrInvalidPrimaryKey = errors.New("invalid primary key")
)

// translateError maps driver errors onto repository errors. Other errors are
// returned unchanged.
func translateError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if is, kind := database.IsSqlError(err); is {
		switch kind {
		case database.NoRowsErr:
			return errors.Wrapf(ErrModelNotFound, format, args...)
		case database.DuplicateKeyErr:
			return errors.Wrapf(errors.WithMessage(ErrAlreadyExists, err.Error()), format, args...)
		}
	}
	return errors.Wrapf(err, format, args...)
}
