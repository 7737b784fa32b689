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
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// MigrationManager applies versioned migrations to one bind and records them
// in the bind_migrations table.
type MigrationManager struct {
	db     *bun.DB
	logger Logger
	now    func() time.Time
}

// Migration is an applied migration record.
type Migration struct {
	bun.BaseModel `bun:"table:bind_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

func NewMigrationManager(db *bun.DB, logger Logger) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{db: db, logger: logger, now: time.Now}
}

// CreateTablesMigration returns a migration that creates every table known to
// mapper.
func CreateTablesMigration(version string, mapper *Mapper) MigrationItem {
	return MigrationItem{
		Version:     version,
		Name:        "create_tables",
		Description: "Create tables of registered models",
		Up: func(ctx context.Context, db bun.IDB) error {
			for _, model := range mapper.Models() {
				if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
					return errors.Wrapf(err, "failed to create table %T", model)
				}
			}
			return nil
		},
	}
}

// Migrate runs the items that were not applied yet in ascending version
// order. Each item runs in its own transaction together with its record.
func (mm *MigrationManager) Migrate(ctx context.Context, items ...MigrationItem) error {
	if mm.db == nil {
		return errors.Wrap(ErrUnsupportedBind, "database not initialized")
	}
	if err := mm.createMigrationTable(ctx); err != nil {
		return errors.Wrap(err, "failed to create migrations table")
	}

	sorted := make([]MigrationItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, item := range sorted {
		if item.Version == "" || item.Up == nil {
			return errors.Wrapf(ErrInvalidConfig, "migration %q needs a version and an up function", item.Name)
		}
		if err := mm.runMigration(ctx, item); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", item.Version)
		}
	}
	return nil
}

// Applied returns migration records ordered by version.
func (mm *MigrationManager) Applied(ctx context.Context) ([]Migration, error) {
	if err := mm.createMigrationTable(ctx); err != nil {
		return nil, err
	}
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}

func (mm *MigrationManager) createMigrationTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(&Migration{
				Version:     migration.Version,
				Name:        migration.Name,
				AppliedAt:   mm.now(),
				Description: migration.Description,
			}).
			Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
	return nil
}
