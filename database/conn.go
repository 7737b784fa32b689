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
	"sync"

	"github.com/pkg/errors"
)

var (
	defaultManager   *BindManager
	defaultManagerMu sync.RWMutex
)

// Init builds the process wide bind manager. A manager installed earlier is
// closed first.
func Init(ctx context.Context, cfg *Config, opts ...ManagerOption) (*BindManager, error) {
	m, err := NewBindManager(ctx, cfg, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize bind manager")
	}
	defaultManagerMu.Lock()
	prev := defaultManager
	defaultManager = m
	defaultManagerMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return m, nil
}

// Default returns the manager installed by Init.
func Default() (*BindManager, error) {
	defaultManagerMu.RLock()
	defer defaultManagerMu.RUnlock()
	if defaultManager == nil {
		return nil, errors.Wrap(ErrNotInitializedBind, "database.Init was not called")
	}
	return defaultManager, nil
}

// GetBind looks a bind up on the default manager.
func GetBind(name ...string) (*Bind, error) {
	m, err := Default()
	if err != nil {
		return nil, err
	}
	return m.GetBind(name...)
}

// CloseDefault closes and forgets the default manager.
func CloseDefault() error {
	defaultManagerMu.Lock()
	m := defaultManager
	defaultManager = nil
	defaultManagerMu.Unlock()
	if m == nil {
		return nil
	}
	return m.Close()
}
