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
	stderrors "errors"
	"sync"

	"github.com/pkg/errors"
	"github.com/tomoncle/binder/utils"
	"github.com/uptrace/bun/schema"
)

// BindManager owns every configured bind. Binds are created by the
// constructor and never change afterwards, so lookups need no locking.
type BindManager struct {
	binds  map[string]*Bind
	names  []string
	logger Logger

	closeMu sync.Mutex
	closed  bool
}

// ManagerOption customizes NewBindManager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger Logger
	models []SQLModel
}

// WithLogger sets the logger given to every bind.
func WithLogger(logger Logger) ManagerOption {
	return func(o *managerOptions) { o.logger = logger }
}

// WithModels registers models with priority 0 on every bind.
func WithModels(models ...interface{}) ManagerOption {
	return func(o *managerOptions) {
		for _, m := range models {
			o.models = append(o.models, NewModelAdapter(m, 0))
		}
	}
}

// WithSQLModels registers prioritized models on every bind.
func WithSQLModels(models ...SQLModel) ManagerOption {
	return func(o *managerOptions) { o.models = append(o.models, models...) }
}

// NewBindManager validates cfg and connects every bind. When one bind fails
// the binds opened so far are closed again.
func NewBindManager(ctx context.Context, cfg *Config, opts ...ManagerOption) (*BindManager, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	o := managerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		configureLogging(cfg.Log)
		o.logger = GetLogger()
	}

	m := &BindManager{
		binds:  make(map[string]*Bind, len(cfg.Binds)),
		names:  sortedBindNames(cfg.Binds),
		logger: o.logger,
	}
	for _, name := range m.names {
		bind, err := OpenBind(ctx, name, cfg.Binds[name], o.logger)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		m.binds[name] = bind

		if err := bind.Mapper().RegisterModels(o.models...); err != nil {
			_ = m.Close()
			return nil, err
		}
		if cfg.Migrate.CreateTablesOnStartup {
			if err := bind.Mapper().CreateAll(ctx); err != nil {
				_ = m.Close()
				return nil, errors.Wrapf(err, "bind %q", name)
			}
		}
	}
	m.logger.Info("Bind manager initialized", "binds", m.names)
	return m, nil
}

// NewSingleBindManager registers conn as the default bind.
func NewSingleBindManager(ctx context.Context, conn ConnectionConfig, opts ...ManagerOption) (*BindManager, error) {
	return NewBindManager(ctx, SingleBindConfig(conn), opts...)
}

func configureLogging(cfg LogConfig) {
	if cfg.Level == "" && cfg.ConsoleFormat == "" && !cfg.File.Enabled {
		return
	}
	if cfg.ConsoleFormat != "" {
		utils.ConfigureConsoleLogFormat(cfg.ConsoleFormat)
	}
	if cfg.File.Enabled {
		utils.ConfigureFileLog(cfg.File)
	}
	if cfg.Level != "" {
		utils.ConfigureLogLevel(cfg.Level)
	}
}

func (m *BindManager) bindName(name []string) string {
	if len(name) == 0 || name[0] == "" {
		return DefaultBindName
	}
	return name[0]
}

// GetBind returns the named bind, or the default one when no name is given.
func (m *BindManager) GetBind(name ...string) (*Bind, error) {
	n := m.bindName(name)
	bind, ok := m.binds[n]
	if !ok {
		return nil, errors.Wrapf(ErrNotInitializedBind, "bind %q", n)
	}
	return bind, nil
}

// GetSession returns a new session on the named bind.
func (m *BindManager) GetSession(name ...string) (*Session, error) {
	bind, err := m.GetBind(name...)
	if err != nil {
		return nil, err
	}
	return bind.NewSession(), nil
}

func (m *BindManager) GetMapper(name ...string) (*Mapper, error) {
	bind, err := m.GetBind(name...)
	if err != nil {
		return nil, err
	}
	return bind.Mapper(), nil
}

// GetBinds returns a copy of the bind map.
func (m *BindManager) GetBinds() map[string]*Bind {
	out := make(map[string]*Bind, len(m.binds))
	for k, v := range m.binds {
		out[k] = v
	}
	return out
}

// BindNames returns the configured names in sorted order.
func (m *BindManager) BindNames() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// MappersMetadata returns the registered table metadata of every bind.
func (m *BindManager) MappersMetadata() map[string][]*schema.Table {
	out := make(map[string][]*schema.Table, len(m.binds))
	for name, bind := range m.binds {
		out[name] = bind.Mapper().Tables()
	}
	return out
}

func (m *BindManager) HealthCheck(ctx context.Context) map[string]*HealthStatus {
	out := make(map[string]*HealthStatus, len(m.binds))
	for name, bind := range m.binds {
		out[name] = bind.HealthCheck(ctx)
	}
	return out
}

func (m *BindManager) Stats() map[string]*DBStats {
	out := make(map[string]*DBStats, len(m.binds))
	for name, bind := range m.binds {
		out[name] = bind.Stats()
	}
	return out
}

// Close closes every bind and joins their errors. Later calls do nothing.
func (m *BindManager) Close() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, name := range m.names {
		if bind, ok := m.binds[name]; ok {
			if err := bind.Close(); err != nil {
				errs = append(errs, errors.Wrapf(err, "bind %q", name))
			}
		}
	}
	return stderrors.Join(errs...)
}
