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
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// SQLModel is a bun model with a creation priority. Lower priorities are
// created first and dropped last.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelAdapter pairs a model instance with its priority.
type ModelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct instance and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &ModelAdapter{instance: instance, priority: priority}
}

func (a *ModelAdapter) Instance() interface{} { return a.instance }

func (a *ModelAdapter) Priority() int { return a.priority }

type mappedModel struct {
	typ      reflect.Type
	priority int
	seq      int
}

// Mapper is the model registry of one bind. Registered models are known to
// the bind's bun DB and can be created or dropped together.
type Mapper struct {
	db     *bun.DB
	mu     sync.RWMutex
	models map[reflect.Type]*mappedModel
	seq    int
}

func newMapper(db *bun.DB) *Mapper {
	return &Mapper{db: db, models: make(map[reflect.Type]*mappedModel)}
}

// Register adds models with priority 0.
func (m *Mapper) Register(models ...interface{}) error {
	for _, model := range models {
		if err := m.RegisterWithPriority(model, 0); err != nil {
			return err
		}
	}
	return nil
}

// RegisterModels adds SQLModel values using their own priorities.
func (m *Mapper) RegisterModels(models ...SQLModel) error {
	for _, model := range models {
		if err := m.RegisterWithPriority(model.Instance(), model.Priority()); err != nil {
			return err
		}
	}
	return nil
}

// RegisterWithPriority adds one model. Registering a type again only updates
// its priority.
func (m *Mapper) RegisterWithPriority(model interface{}, priority int) error {
	typ, err := modelType(model)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.models[typ]; ok {
		existing.priority = priority
		return nil
	}
	m.db.RegisterModel(reflect.New(typ).Interface())
	m.seq++
	m.models[typ] = &mappedModel{typ: typ, priority: priority, seq: m.seq}
	return nil
}

// Models returns a zero pointer of every registered model in creation order.
func (m *Mapper) Models() []interface{} {
	ordered := m.ordered()
	out := make([]interface{}, len(ordered))
	for i, mm := range ordered {
		out[i] = reflect.New(mm.typ).Interface()
	}
	return out
}

// Tables returns the bun table metadata of the registered models in creation
// order.
func (m *Mapper) Tables() []*schema.Table {
	ordered := m.ordered()
	out := make([]*schema.Table, len(ordered))
	for i, mm := range ordered {
		out[i] = m.db.Table(mm.typ)
	}
	return out
}

// Table returns the table metadata for model, which may be a struct value, a
// pointer to one or a reflect.Type. The model does not need to be registered.
func (m *Mapper) Table(model interface{}) (*schema.Table, error) {
	typ, err := modelType(model)
	if err != nil {
		return nil, err
	}
	return m.db.Table(typ), nil
}

// CreateAll creates the tables of all registered models if they do not exist.
func (m *Mapper) CreateAll(ctx context.Context) error {
	for _, model := range m.Models() {
		if _, err := m.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrapf(err, "failed to create table %T", model)
		}
	}
	return nil
}

// DropAll drops the tables of all registered models in reverse creation order.
func (m *Mapper) DropAll(ctx context.Context) error {
	models := m.Models()
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := m.db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return errors.Wrapf(err, "failed to drop table %T", models[i])
		}
	}
	return nil
}

func (m *Mapper) ordered() []*mappedModel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*mappedModel, 0, len(m.models))
	for _, mm := range m.models {
		result = append(result, mm)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].priority != result[j].priority {
			return result[i].priority < result[j].priority
		}
		return result[i].seq < result[j].seq
	})
	return result
}

// ModelType returns the struct type behind model.
func ModelType(model interface{}) (reflect.Type, error) {
	return modelType(model)
}

func modelType(model interface{}) (reflect.Type, error) {
	if model == nil {
		return nil, errors.Wrap(ErrInvalidModel, "model is nil")
	}
	typ, ok := model.(reflect.Type)
	if !ok {
		typ = reflect.TypeOf(model)
	}
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, errors.Wrapf(ErrInvalidModel, "%s is not a struct", typ)
	}
	return typ, nil
}
