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

package unitofwork

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/tomoncle/binder/database"
	"github.com/tomoncle/binder/repository"
)

var (
	// ErrRepositoryNotFound is returned for names that were never registered.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrRepositoryType is returned when a name holds a repository of another model.
	ErrRepositoryType = errors.New("repository has a different model type")
	// ErrBindMismatch is returned when attaching a repository of another bind.
	ErrBindMismatch = errors.New("repository belongs to another bind")
)

// UnitOfWork groups repositories on one bind behind one shared session so
// their writes commit or roll back together. It is not safe for concurrent
// use.
type UnitOfWork struct {
	bind    *database.Bind
	session *database.Session
	repos   map[string]any
}

func New(bind *database.Bind) (*UnitOfWork, error) {
	if bind == nil {
		return nil, errors.Wrap(database.ErrUnsupportedBind, "bind cannot be nil")
	}
	return &UnitOfWork{
		bind:    bind,
		session: bind.NewSession(),
		repos:   make(map[string]any),
	}, nil
}

func (u *UnitOfWork) Bind() *database.Bind { return u.bind }

// Session returns the shared session.
func (u *UnitOfWork) Session() *database.Session { return u.session }

// Names returns the registered repository names in sorted order.
func (u *UnitOfWork) Names() []string {
	names := make([]string, 0, len(u.repos))
	for name := range u.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register builds a repository for T on the shared session and stores it
// under name, replacing any repository registered there before.
func Register[T any](u *UnitOfWork, name string, opts ...repository.Option) (repository.Repository[T], error) {
	repo, err := repository.NewWithSession[T](u.session, opts...)
	if err != nil {
		return nil, err
	}
	u.repos[name] = repo
	return repo, nil
}

// Attach adopts repo, rebinding it to the shared session. repo must belong
// to the unit of work's bind.
func Attach[T any](u *UnitOfWork, name string, repo repository.Repository[T]) (repository.Repository[T], error) {
	if repo == nil {
		return nil, errors.Wrap(database.ErrInvalidConfig, "repository cannot be nil")
	}
	if repo.Bind() != u.bind {
		return nil, errors.Wrapf(ErrBindMismatch, "repository %q is bound to %q, unit of work to %q", name, repo.Bind().Name(), u.bind.Name())
	}
	attached, err := repo.WithSession(u.session)
	if err != nil {
		return nil, err
	}
	u.repos[name] = attached
	return attached, nil
}

// Repository returns the repository registered under name.
func Repository[T any](u *UnitOfWork, name string) (repository.Repository[T], error) {
	stored, ok := u.repos[name]
	if !ok {
		return nil, errors.Wrapf(ErrRepositoryNotFound, "%q", name)
	}
	repo, ok := stored.(repository.Repository[T])
	if !ok {
		return nil, errors.Wrapf(ErrRepositoryType, "%q", name)
	}
	return repo, nil
}

// TxOption customizes Transaction.
type TxOption func(*txOptions)

type txOptions struct {
	readOnly bool
}

// WithReadOnly rolls the transaction back instead of committing it.
func WithReadOnly() TxOption {
	return func(o *txOptions) { o.readOnly = true }
}

// Transaction runs fn inside a transaction on the shared session. It
// commits when fn returns nil and rolls back when fn fails or panics, the
// panic being re-raised. Calling Transaction from inside fn fails with
// database.ErrSessionActive.
func (u *UnitOfWork) Transaction(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error {
	var o txOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := u.session.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			u.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		u.rollback()
		return err
	}
	if o.readOnly {
		return u.session.Rollback()
	}
	return u.session.Commit()
}

func (u *UnitOfWork) rollback() {
	if !u.session.InTransaction() {
		return
	}
	if err := u.session.Rollback(); err != nil {
		u.bind.Logger().Error("Failed to rollback unit of work", "bind", u.bind.Name(), "session", u.session.ID(), "error", err)
	}
}

// Close rolls back an open transaction and closes the shared session.
func (u *UnitOfWork) Close() error {
	return u.session.Close()
}
