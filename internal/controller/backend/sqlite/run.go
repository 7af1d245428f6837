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

	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

const runColumns = `id, workflow_id, version, org_id, status, trigger_type, started_at, completed_at,
	duration_ms, error_message, steps, metadata, resume_marker, created_at, updated_at`

// CreateRun inserts a new run.
func (b *Backend) CreateRun(ctx context.Context, run *workflow.Run) error {
	stepsJSON, metadataJSON, markerJSON, err := marshalRunFields(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (id, workflow_id, version, org_id, status, trigger_type, started_at,
			completed_at, duration_ms, error_message, steps, metadata, resume_marker,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	stampCreate(&run.CreatedAt, &run.UpdatedAt)
	_, err = b.db.ExecContext(ctx, query,
		run.ID, run.WorkflowID, run.Version, run.OrgID, string(run.Status), string(run.TriggerType),
		formatTime(run.StartedAt), formatTime(run.CompletedAt), run.DurationMs,
		nullString(run.ErrorMessage), string(stepsJSON), string(metadataJSON), nullBytes(markerJSON),
		run.CreatedAt.UTC().Format(timeFormat), run.UpdatedAt.UTC().Format(timeFormat),
	)
	if isUniqueViolation(err) {
		return &errors.ConflictError{Resource: "run", Reason: fmt.Sprintf("id %q already exists", run.ID)}
	}
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (b *Backend) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	row := b.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// UpdateRun replaces the stored row for run.ID.
func (b *Backend) UpdateRun(ctx context.Context, run *workflow.Run) error {
	stepsJSON, metadataJSON, markerJSON, err := marshalRunFields(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs SET
			workflow_id = ?, version = ?, org_id = ?, status = ?, trigger_type = ?,
			started_at = ?, completed_at = ?, duration_ms = ?, error_message = ?,
			steps = ?, metadata = ?, resume_marker = ?, updated_at = ?
		WHERE id = ?
	`

	run.UpdatedAt = time.Now().UTC()
	result, err := b.db.ExecContext(ctx, query,
		run.WorkflowID, run.Version, run.OrgID, string(run.Status), string(run.TriggerType),
		formatTime(run.StartedAt), formatTime(run.CompletedAt), run.DurationMs,
		nullString(run.ErrorMessage), string(stepsJSON), string(metadataJSON), nullBytes(markerJSON),
		run.UpdatedAt.Format(timeFormat),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return &errors.NotFoundError{Resource: "run", ID: run.ID}
	}
	return nil
}

// ListRuns lists runs matching the filter, newest first.
func (b *Backend) ListRuns(ctx context.Context, filter backend.RunFilter) ([]*workflow.Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE 1=1"
	args := []any{}

	if filter.OrgID != "" {
		query += " AND org_id = ?"
		args = append(args, filter.OrgID)
	}
	if filter.WorkflowID != "" {
		query += " AND workflow_id = ?"
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.After != nil {
		query += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		cursorAt := filter.After.CreatedAt.UTC().Format(timeFormat)
		args = append(args, cursorAt, cursorAt, filter.After.ID)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// marshalRunFields marshals the JSON columns of a run row.
func marshalRunFields(run *workflow.Run) (steps, metadata, marker []byte, err error) {
	steps, err = json.Marshal(run.Steps)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal steps: %w", err)
	}
	metadata, err = json.Marshal(run.Metadata)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if run.ResumeMarker != nil {
		marker, err = json.Marshal(run.ResumeMarker)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal resume_marker: %w", err)
		}
	}
	return steps, metadata, marker, nil
}

// scanRun scans one runs row.
func scanRun(sc rowScanner) (*workflow.Run, error) {
	var run workflow.Run
	var status, triggerType string
	var startedAt, completedAt, createdAt, updatedAt sql.NullString
	var errorMessage, stepsJSON, metadataJSON, markerJSON sql.NullString

	err := sc.Scan(
		&run.ID, &run.WorkflowID, &run.Version, &run.OrgID, &status, &triggerType,
		&startedAt, &completedAt, &run.DurationMs, &errorMessage,
		&stepsJSON, &metadataJSON, &markerJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = workflow.RunStatus(status)
	run.TriggerType = workflow.TriggerType(triggerType)
	run.ErrorMessage = errorMessage.String

	if stepsJSON.Valid && stepsJSON.String != "" {
		if err := json.Unmarshal([]byte(stepsJSON.String), &run.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if markerJSON.Valid && markerJSON.String != "" {
		var marker workflow.ResumeMarker
		if err := json.Unmarshal([]byte(markerJSON.String), &marker); err != nil {
			return nil, fmt.Errorf("failed to unmarshal resume_marker: %w", err)
		}
		run.ResumeMarker = &marker
	}

	run.StartedAt = parseTimePtr(startedAt)
	run.CompletedAt = parseTimePtr(completedAt)
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	return &run, nil
}

const artifactColumns = `id, run_id, workflow_id, type, name, file_path, file_url, file_size,
	mime_type, width, height, overlays, thumbnail_path, source, block_id, created_at`

// CreateArtifact inserts a new artifact record.
func (b *Backend) CreateArtifact(ctx context.Context, a *workflow.Artifact) error {
	overlaysJSON, err := json.Marshal(a.Overlays)
	if err != nil {
		return fmt.Errorf("failed to marshal overlays: %w", err)
	}

	query := `
		INSERT INTO artifacts (id, run_id, workflow_id, type, name, file_path, file_url, file_size,
			mime_type, width, height, overlays, thumbnail_path, source, block_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err = b.db.ExecContext(ctx, query,
		a.ID, a.RunID, a.WorkflowID, string(a.Type), a.Name,
		nullString(a.FilePath), nullString(a.FileURL), a.FileSize,
		nullString(a.MimeType), a.Width, a.Height,
		string(overlaysJSON), nullString(a.ThumbnailPath), nullString(a.Source), nullString(a.BlockID),
		a.CreatedAt.UTC().Format(timeFormat),
	)
	if isUniqueViolation(err) {
		return &errors.ConflictError{Resource: "artifact", Reason: fmt.Sprintf("id %q already exists", a.ID)}
	}
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	return nil
}

// GetArtifact retrieves an artifact by ID.
func (b *Backend) GetArtifact(ctx context.Context, id string) (*workflow.Artifact, error) {
	row := b.db.QueryRowContext(ctx, "SELECT "+artifactColumns+" FROM artifacts WHERE id = ?", id)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "artifact", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// ListArtifactsByRun returns a run's artifacts in creation order.
// rowid preserves insertion order when stored timestamps tie.
func (b *Backend) ListArtifactsByRun(ctx context.Context, runID string) ([]*workflow.Artifact, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT "+artifactColumns+" FROM artifacts WHERE run_id = ? ORDER BY created_at, rowid",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var result []*workflow.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// scanArtifact scans one artifacts row.
func scanArtifact(sc rowScanner) (*workflow.Artifact, error) {
	var a workflow.Artifact
	var artifactType string
	var filePath, fileURL, mimeType, overlaysJSON sql.NullString
	var thumbnailPath, source, blockID, createdAt sql.NullString

	err := sc.Scan(
		&a.ID, &a.RunID, &a.WorkflowID, &artifactType, &a.Name,
		&filePath, &fileURL, &a.FileSize,
		&mimeType, &a.Width, &a.Height,
		&overlaysJSON, &thumbnailPath, &source, &blockID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.Type = workflow.ArtifactType(artifactType)
	a.FilePath = filePath.String
	a.FileURL = fileURL.String
	a.MimeType = mimeType.String
	a.ThumbnailPath = thumbnailPath.String
	a.Source = source.String
	a.BlockID = blockID.String

	if overlaysJSON.Valid && overlaysJSON.String != "" {
		if err := json.Unmarshal([]byte(overlaysJSON.String), &a.Overlays); err != nil {
			return nil, fmt.Errorf("failed to unmarshal overlays: %w", err)
		}
	}

	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

const publicRunColumns = `id, run_id, workflow_id, slug, ip_hash, user_agent, anonymous, created_at`

// CreatePublicRun inserts one accepted public trigger record.
func (b *Backend) CreatePublicRun(ctx context.Context, pr *workflow.PublicRun) error {
	query := `
		INSERT INTO public_runs (id, run_id, workflow_id, slug, ip_hash, user_agent, anonymous, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now().UTC()
	}
	_, err := b.db.ExecContext(ctx, query,
		pr.ID, pr.RunID, pr.WorkflowID, pr.Slug, pr.IPHash,
		nullString(pr.UserAgent), pr.Anonymous,
		pr.CreatedAt.UTC().Format(timeFormat),
	)
	if isUniqueViolation(err) {
		return &errors.ConflictError{Resource: "public_run", Reason: fmt.Sprintf("id %q already exists", pr.ID)}
	}
	if err != nil {
		return fmt.Errorf("failed to create public run: %w", err)
	}
	return nil
}

// ListPublicRuns returns a workflow's public trigger records, newest
// first.
func (b *Backend) ListPublicRuns(ctx context.Context, workflowID string) ([]*workflow.PublicRun, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT "+publicRunColumns+" FROM public_runs WHERE workflow_id = ? ORDER BY created_at DESC, rowid DESC",
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list public runs: %w", err)
	}
	defer rows.Close()

	var result []*workflow.PublicRun
	for rows.Next() {
		var pr workflow.PublicRun
		var userAgent, createdAt sql.NullString
		if err := rows.Scan(
			&pr.ID, &pr.RunID, &pr.WorkflowID, &pr.Slug, &pr.IPHash,
			&userAgent, &pr.Anonymous, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan public run: %w", err)
		}
		pr.UserAgent = userAgent.String
		pr.CreatedAt = parseTime(createdAt)
		result = append(result, &pr)
	}
	return result, rows.Err()
}
