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

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/conduit/pkg/blueprint"
	"github.com/tombee/conduit/pkg/errors"
	"github.com/tombee/conduit/pkg/instance"
	"github.com/tombee/conduit/pkg/runtime"
)

// Compile-time interface assertion.
var _ runtime.WorkflowContextManager = (*ContextManager)(nil)

// ContextManager persists user workflow-context payloads in the store's
// workflow_contexts table, keyed by contextId. Payloads are stored as JSON.
type ContextManager struct {
	db *sql.DB
}

// NewContextManager creates a context manager over the store's database.
func NewContextManager(s *Store) *ContextManager {
	return &ContextManager{db: s.db}
}

// LoadContext loads the payload referenced by the instance's contextId.
func (m *ContextManager) LoadContext(ctx context.Context, bp *blueprint.Blueprint, inst *instance.WorkflowInstance) (interface{}, error) {
	var payload sql.NullString
	err := m.db.QueryRowContext(ctx,
		`SELECT payload FROM workflow_contexts WHERE id = ?`, inst.ContextID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "workflow context", ID: inst.ContextID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow context: %w", err)
	}
	if !payload.Valid {
		return nil, nil
	}

	var value interface{}
	if err := json.Unmarshal([]byte(payload.String), &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow context: %w", err)
	}
	return value, nil
}

// SaveContext persists the execution context's workflow-context value under
// the instance's existing contextId, allocating a new id on first save.
func (m *ContextManager) SaveContext(ctx context.Context, wfCtx *runtime.WorkflowExecutionContext) (string, error) {
	contextID := wfCtx.Instance.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}

	payload, err := json.Marshal(wfCtx.WorkflowContext)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow context: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO workflow_contexts (id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, contextID, string(payload), time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to save workflow context: %w", err)
	}

	return contextID, nil
}
