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

package binder

import (
	"context"
	"sync"

	"github.com/tomoncle/binder/database"
	"github.com/tomoncle/binder/repository"
	"github.com/tomoncle/binder/types"
	"github.com/tomoncle/binder/unitofwork"
)

type Service[T any] interface {
	// Get returns a single entity by its primary key.
	Get(ctx context.Context, id any) (*T, error)

	// GetMany returns the entities with the given primary keys.
	GetMany(ctx context.Context, ids []any) ([]*T, error)

	// All returns all entities in primary key order.
	All(ctx context.Context) ([]*T, error)

	// Find returns entities matching the equality filters.
	Find(ctx context.Context, params types.SearchParams, orderBy ...types.OrderBy) ([]*T, error)

	// FindOne returns the only entity matching the equality filters.
	FindOne(ctx context.Context, params types.SearchParams) (*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter, orderBy ...types.OrderBy) ([]*T, error)

	// Page returns a limit/offset page of entities.
	Page(ctx context.Context, req types.PageRequest) (*types.PaginatedResult[T], error)

	// CursorPage returns a cursor page of entities.
	CursorPage(ctx context.Context, req types.CursorPageRequest) (*types.CursorPaginatedResult[T], error)

	// Save inserts or updates an entity by primary key.
	Save(ctx context.Context, model *T) (*T, error)

	// SaveMany saves entities in one transaction.
	SaveMany(ctx context.Context, models []*T) ([]*T, error)

	// Create inserts new entities.
	Create(ctx context.Context, model ...*T) error

	// Update modifies an existing entity.
	Update(ctx context.Context, model *T) error

	// Delete removes an entity.
	Delete(ctx context.Context, model *T) error

	// DeleteByID removes an entity by its primary key.
	DeleteByID(ctx context.Context, id any) error

	// Repository exposes the underlying repository.
	Repository() (repository.Repository[T], error)
}

type baseServiceImpl[T any] struct {
	bindName []string
	mu       sync.Mutex
	repo     repository.Repository[T]
}

// NewService returns a Service on the named bind of the default manager
// installed by database.Init. The bind is looked up on every call, so a
// service follows the manager through a later Init.
func NewService[T any](bindName ...string) Service[T] {
	return &baseServiceImpl[T]{bindName: bindName}
}

// NewUnitOfWork returns a unit of work on the named bind of the default
// manager.
func NewUnitOfWork(bindName ...string) (*unitofwork.UnitOfWork, error) {
	bind, err := database.GetBind(bindName...)
	if err != nil {
		return nil, err
	}
	return unitofwork.New(bind)
}

func (s *baseServiceImpl[T]) baseRepo() (repository.Repository[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bind, err := database.GetBind(s.bindName...)
	if err != nil {
		return nil, err
	}
	if s.repo != nil && s.repo.Bind() == bind {
		return s.repo, nil
	}
	repo, err := repository.New[T](bind)
	if err != nil {
		return nil, err
	}
	s.repo = repo
	return repo, nil
}

func (s *baseServiceImpl[T]) Repository() (repository.Repository[T], error) {
	return s.baseRepo()
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

func (s *baseServiceImpl[T]) GetMany(ctx context.Context, ids []any) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.GetMany(ctx, ids)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Find(ctx, nil)
}

func (s *baseServiceImpl[T]) Find(ctx context.Context, params types.SearchParams, orderBy ...types.OrderBy) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Find(ctx, params, orderBy...)
}

func (s *baseServiceImpl[T]) FindOne(ctx context.Context, params types.SearchParams) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindOne(ctx, params)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter, orderBy ...types.OrderBy) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.List(ctx, filter, orderBy...)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, req types.PageRequest) (*types.PaginatedResult[T], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.PaginatedFind(ctx, req)
}

func (s *baseServiceImpl[T]) CursorPage(ctx context.Context, req types.CursorPageRequest) (*types.CursorPaginatedResult[T], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.CursorPaginatedFind(ctx, req)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model *T) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Save(ctx, model)
}

func (s *baseServiceImpl[T]) SaveMany(ctx context.Context, models []*T) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.SaveMany(ctx, models)
}

func (s *baseServiceImpl[T]) Create(ctx context.Context, model ...*T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.Create(ctx, model...)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.Update(ctx, model)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, model *T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.Delete(ctx, model)
}

func (s *baseServiceImpl[T]) DeleteByID(ctx context.Context, id any) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.DeleteByID(ctx, id)
}
