// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a SQLite-backed instance store and workflow
// context manager for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tombee/conduit/pkg/errors"
	"github.com/tombee/conduit/pkg/instance"
	"github.com/tombee/conduit/pkg/store"
	_ "modernc.org/sqlite"
)

// Compile-time interface assertion.
var _ store.Store = (*Store)(nil)

// Store is a SQLite instance store.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New creates a new SQLite store.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single open connection serves reads and writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// configurePragmas sets SQLite configuration options.
func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			definition_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			tenant_id TEXT,
			correlation_id TEXT,
			context_id TEXT,
			status TEXT NOT NULL,
			variables TEXT,
			blocking TEXT,
			scheduled TEXT,
			current_activity TEXT,
			output TEXT,
			faults TEXT,
			execution_log TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_status ON instances(status)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_definition ON instances(definition_id, version)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_correlation ON instances(correlation_id)`,
		`CREATE TABLE IF NOT EXISTS workflow_contexts (
			id TEXT PRIMARY KEY,
			payload TEXT,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Create creates a new instance.
func (s *Store) Create(ctx context.Context, inst *instance.WorkflowInstance) error {
	if inst == nil {
		return &errors.ValidationError{Field: "instance", Message: "instance cannot be nil"}
	}
	if inst.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "instance ID cannot be empty"}
	}

	cols, err := marshalColumns(inst)
	if err != nil {
		return err
	}

	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now

	query := `
		INSERT INTO instances (id, definition_id, version, tenant_id, correlation_id, context_id,
			status, variables, blocking, scheduled, current_activity, output, faults, execution_log,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		inst.ID, inst.WorkflowDefinitionID, inst.Version,
		nullString(inst.TenantID), nullString(inst.CorrelationID), nullString(inst.ContextID),
		string(inst.Status), cols.variables, cols.blocking, cols.scheduled,
		nullString(inst.CurrentActivity), cols.output, cols.faults, cols.executionLog,
		inst.CreatedAt.Format(time.RFC3339Nano), inst.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// Get retrieves an instance by ID.
func (s *Store) Get(ctx context.Context, id string) (*instance.WorkflowInstance, error) {
	if id == "" {
		return nil, &errors.ValidationError{Field: "id", Message: "instance ID cannot be empty"}
	}

	query := `
		SELECT id, definition_id, version, tenant_id, correlation_id, context_id,
			status, variables, blocking, scheduled, current_activity, output, faults, execution_log,
			created_at, updated_at
		FROM instances WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, query, id)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "instance", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// Update updates an existing instance.
func (s *Store) Update(ctx context.Context, inst *instance.WorkflowInstance) error {
	if inst == nil {
		return &errors.ValidationError{Field: "instance", Message: "instance cannot be nil"}
	}
	if inst.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "instance ID cannot be empty"}
	}

	cols, err := marshalColumns(inst)
	if err != nil {
		return err
	}
	inst.UpdatedAt = time.Now()

	query := `
		UPDATE instances SET definition_id = ?, version = ?, tenant_id = ?, correlation_id = ?,
			context_id = ?, status = ?, variables = ?, blocking = ?, scheduled = ?,
			current_activity = ?, output = ?, faults = ?, execution_log = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		inst.WorkflowDefinitionID, inst.Version,
		nullString(inst.TenantID), nullString(inst.CorrelationID), nullString(inst.ContextID),
		string(inst.Status), cols.variables, cols.blocking, cols.scheduled,
		nullString(inst.CurrentActivity), cols.output, cols.faults, cols.executionLog,
		inst.UpdatedAt.Format(time.RFC3339Nano), inst.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return &errors.NotFoundError{Resource: "instance", ID: inst.ID}
	}
	return nil
}

// Delete deletes an instance by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &errors.ValidationError{Field: "id", Message: "instance ID cannot be empty"}
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return &errors.NotFoundError{Resource: "instance", ID: id}
	}
	return nil
}

// List returns all instances matching the query, ordered by creation time.
func (s *Store) List(ctx context.Context, query *store.Query) ([]*instance.WorkflowInstance, error) {
	sqlQuery := `
		SELECT id, definition_id, version, tenant_id, correlation_id, context_id,
			status, variables, blocking, scheduled, current_activity, output, faults, execution_log,
			created_at, updated_at
		FROM instances
	`
	var args []interface{}
	var conditions []string

	if query != nil {
		if query.Status != nil {
			conditions = append(conditions, "status = ?")
			args = append(args, string(*query.Status))
		}
		if query.DefinitionID != "" {
			conditions = append(conditions, "definition_id = ?")
			args = append(args, query.DefinitionID)
		}
		if query.CorrelationID != "" {
			conditions = append(conditions, "correlation_id = ?")
			args = append(args, query.CorrelationID)
		}
	}

	for i, cond := range conditions {
		if i == 0 {
			sqlQuery += " WHERE " + cond
		} else {
			sqlQuery += " AND " + cond
		}
	}
	sqlQuery += " ORDER BY created_at"

	if query != nil && query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	} else if query != nil && query.Offset > 0 {
		sqlQuery += " LIMIT -1 OFFSET ?"
		args = append(args, query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var results []*instance.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		results = append(results, inst)
	}
	return results, rows.Err()
}

// CountByDefinition counts instances pinned to a definition version.
func (s *Store) CountByDefinition(ctx context.Context, definitionID string, version int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM instances WHERE definition_id = ? AND version = ?`,
		definitionID, version,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return count, nil
}

// jsonColumns holds the JSON-encoded complex fields of an instance row.
type jsonColumns struct {
	variables    sql.NullString
	blocking     sql.NullString
	scheduled    sql.NullString
	output       sql.NullString
	faults       sql.NullString
	executionLog sql.NullString
}

func marshalColumns(inst *instance.WorkflowInstance) (*jsonColumns, error) {
	cols := &jsonColumns{}

	set := func(target *sql.NullString, value interface{}, empty bool) error {
		if empty {
			return nil
		}
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal instance field: %w", err)
		}
		*target = sql.NullString{String: string(data), Valid: true}
		return nil
	}

	if err := set(&cols.variables, inst.Variables, len(inst.Variables) == 0); err != nil {
		return nil, err
	}
	if err := set(&cols.blocking, inst.BlockingActivities, len(inst.BlockingActivities) == 0); err != nil {
		return nil, err
	}
	if err := set(&cols.scheduled, inst.ScheduledActivities, len(inst.ScheduledActivities) == 0); err != nil {
		return nil, err
	}
	if err := set(&cols.output, inst.Output, inst.Output == nil); err != nil {
		return nil, err
	}
	if err := set(&cols.faults, inst.Faults, len(inst.Faults) == 0); err != nil {
		return nil, err
	}
	if err := set(&cols.executionLog, inst.ExecutionLog, len(inst.ExecutionLog) == 0); err != nil {
		return nil, err
	}
	return cols, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row scanner) (*instance.WorkflowInstance, error) {
	var (
		inst            instance.WorkflowInstance
		status          string
		tenantID        sql.NullString
		correlationID   sql.NullString
		contextID       sql.NullString
		currentActivity sql.NullString
		cols            jsonColumns
		createdAt       string
		updatedAt       string
	)

	err := row.Scan(
		&inst.ID, &inst.WorkflowDefinitionID, &inst.Version,
		&tenantID, &correlationID, &contextID,
		&status, &cols.variables, &cols.blocking, &cols.scheduled,
		&currentActivity, &cols.output, &cols.faults, &cols.executionLog,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.Status = instance.Status(status)
	inst.TenantID = tenantID.String
	inst.CorrelationID = correlationID.String
	inst.ContextID = contextID.String
	inst.CurrentActivity = currentActivity.String

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		inst.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		inst.UpdatedAt = t
	}

	unmarshal := func(col sql.NullString, target interface{}) error {
		if !col.Valid {
			return nil
		}
		return json.Unmarshal([]byte(col.String), target)
	}

	if err := unmarshal(cols.variables, &inst.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}
	if err := unmarshal(cols.blocking, &inst.BlockingActivities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal blocking activities: %w", err)
	}
	if err := unmarshal(cols.scheduled, &inst.ScheduledActivities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scheduled activities: %w", err)
	}
	if err := unmarshal(cols.output, &inst.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	if err := unmarshal(cols.faults, &inst.Faults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal faults: %w", err)
	}
	if err := unmarshal(cols.executionLog, &inst.ExecutionLog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
	}

	return &inst, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
