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
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// TxFunc runs inside a session transaction.
type TxFunc func(ctx context.Context, db bun.IDB) error

// Session is one transaction scope on a bind. It is not safe for concurrent
// use. A closed session cannot begin again.
type Session struct {
	id     string
	bind   *Bind
	opts   SessionOptions
	tx     *bun.Tx
	closed bool
}

func newSession(bind *Bind, opts SessionOptions) *Session {
	return &Session{id: uuid.NewString(), bind: bind, opts: opts}
}

// ID identifies the session in log lines.
func (s *Session) ID() string { return s.id }

func (s *Session) Bind() *Bind { return s.bind }

func (s *Session) Options() SessionOptions { return s.opts }

func (s *Session) InTransaction() bool { return s.tx != nil }

func (s *Session) Closed() bool { return s.closed }

// IDB returns the open transaction, or the bind DB when there is none.
func (s *Session) IDB() bun.IDB {
	if s.tx != nil {
		return s.tx
	}
	return s.bind.db
}

// Begin starts a transaction with the session options.
func (s *Session) Begin(ctx context.Context) error {
	if s.closed {
		return errors.Wrapf(ErrSessionClosed, "session %s", s.id)
	}
	if s.tx != nil {
		return errors.Wrapf(ErrSessionActive, "session %s", s.id)
	}
	tx, err := s.bind.db.BeginTx(ctx, s.opts.TxOptions())
	if err != nil {
		return errors.Wrapf(err, "failed to begin transaction on bind %q", s.bind.name)
	}
	s.tx = &tx
	s.bind.logger.Debug("Session transaction started", "bind", s.bind.name, "session", s.id)
	return nil
}

// Commit commits the open transaction. When the commit fails the transaction
// is rolled back and the commit error returned.
func (s *Session) Commit() error {
	if s.tx == nil {
		return errors.Wrapf(ErrNoActiveSession, "session %s", s.id)
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
			s.bind.logger.Error("Failed to rollback transaction", "bind", s.bind.name, "session", s.id, "error", rbErr)
		}
		return errors.Wrapf(err, "failed to commit transaction on bind %q", s.bind.name)
	}
	s.bind.logger.Debug("Session transaction committed", "bind", s.bind.name, "session", s.id)
	return nil
}

func (s *Session) Rollback() error {
	if s.tx == nil {
		return errors.Wrapf(ErrNoActiveSession, "session %s", s.id)
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
		return errors.Wrapf(err, "failed to rollback transaction on bind %q", s.bind.name)
	}
	s.bind.logger.Debug("Session transaction rolled back", "bind", s.bind.name, "session", s.id)
	return nil
}

// Close rolls back an open transaction and marks the session closed. It is
// safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tx != nil {
		return s.Rollback()
	}
	return nil
}

// Run begins a transaction, calls fn and commits. The transaction is rolled
// back when fn fails or panics (the panic is re-raised) and when readOnly is
// set. The session is closed on return.
func (s *Session) Run(ctx context.Context, readOnly bool, fn TxFunc) (err error) {
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err = s.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := s.Rollback(); rbErr != nil {
				s.bind.logger.Error("Failed to rollback transaction", "bind", s.bind.name, "session", s.id, "error", rbErr)
			}
			panic(p)
		}
	}()

	if err = fn(ctx, s.tx); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			s.bind.logger.Error("Failed to rollback transaction", "bind", s.bind.name, "session", s.id, "error", rbErr)
		}
		return err
	}
	if readOnly {
		return s.Rollback()
	}
	return s.Commit()
}
