package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres. Every status write is a single conditional UPDATE
// so concurrent callers race on the row, not in Go.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, vehicle_ref, document_type, raw_upload_ref, mime_type, size_bytes, source, status,
extracted_fields, field_issues, raw_extraction, error_code, error_detail, error_retryable,
attempt_count, claim_id, claimed_at, created_at, updated_at`

// Create inserts a new pending document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id,
    vehicle_ref,
    document_type,
    raw_upload_ref,
    mime_type,
    size_bytes,
    source,
    status,
    attempt_count,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $9)`

	status := doc.Status
	if status == "" {
		status = StatusPending
	}
	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		nullString(doc.VehicleRef),
		nullString(string(doc.Type)),
		doc.RawUploadRef,
		doc.MimeType,
		doc.SizeBytes,
		string(doc.Source),
		string(status),
		doc.CreatedAt,
	)
	return err
}

// GetByID fetches a document by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// List returns documents newest-first.
func (r *PGRepo) List(ctx context.Context, f Filter) ([]Document, error) {
	f = f.normalized()
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("document_type = $%d", len(args)))
	}
	if f.VehicleRef != "" {
		args = append(args, f.VehicleRef)
		where = append(where, fmt.Sprintf("vehicle_ref = $%d", len(args)))
	}
	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	return r.queryDocuments(ctx, query, args...)
}

// Claim moves a pending or error document (or done, with AllowDone) to processing.
func (r *PGRepo) Claim(ctx context.Context, req ClaimRequest) (Document, error) {
	query := `
UPDATE documents
SET status = 'processing',
    attempt_count = attempt_count + 1,
    claim_id = $2,
    claimed_at = $3,
    updated_at = $3
WHERE id = $1
  AND (status IN ('pending', 'error') OR ($4 AND status = 'done'))
RETURNING ` + documentColumns

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, req.ID, req.ClaimID, req.At.UTC(), req.AllowDone))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Document{}, err
	}
	if err := r.exists(ctx, req.ID); err != nil {
		return Document{}, err
	}
	return Document{}, ErrAlreadyProcessing
}

// Complete commits processing → done for the holder of claimID.
func (r *PGRepo) Complete(ctx context.Context, id, claimID string, c Completion) (Document, error) {
	fields, err := marshalJSON(c.ExtractedFields)
	if err != nil {
		return Document{}, err
	}
	issues, err := marshalJSON(c.FieldIssues)
	if err != nil {
		return Document{}, err
	}
	raw, err := marshalJSON(c.RawExtraction)
	if err != nil {
		return Document{}, err
	}
	query := `
UPDATE documents
SET status = 'done',
    document_type = COALESCE($3, document_type),
    vehicle_ref = COALESCE($4, vehicle_ref),
    extracted_fields = $5,
    field_issues = $6,
    raw_extraction = $7,
    error_code = NULL,
    error_detail = NULL,
    error_retryable = NULL,
    updated_at = $8
WHERE id = $1 AND status = 'processing' AND claim_id = $2
RETURNING ` + documentColumns

	doc, err := scanDocument(r.DB.QueryRowContext(
		ctx,
		query,
		id,
		claimID,
		nullString(string(c.Type)),
		nullString(c.VehicleRef),
		fields,
		issues,
		raw,
		c.At.UTC(),
	))
	return r.commitResult(ctx, id, doc, err)
}

// Fail commits processing → error for the holder of claimID. extracted_fields is untouched.
func (r *PGRepo) Fail(ctx context.Context, id, claimID string, f Failure) (Document, error) {
	raw, err := marshalJSON(f.RawExtraction)
	if err != nil {
		return Document{}, err
	}
	query := `
UPDATE documents
SET status = 'error',
    error_code = $3,
    error_detail = $4,
    error_retryable = $5,
    raw_extraction = COALESCE($6, raw_extraction),
    updated_at = $7
WHERE id = $1 AND status = 'processing' AND claim_id = $2
RETURNING ` + documentColumns

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id, claimID, f.Code, f.Detail, f.Retryable, raw, f.At.UTC()))
	return r.commitResult(ctx, id, doc, err)
}

// Rearm moves done or error back to pending; a pending document is returned unchanged.
func (r *PGRepo) Rearm(ctx context.Context, id string, at time.Time) (Document, error) {
	query := `
UPDATE documents
SET status = 'pending',
    updated_at = $2
WHERE id = $1 AND status IN ('done', 'error')
RETURNING ` + documentColumns

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id, at.UTC()))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Document{}, err
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if current.Status == StatusPending {
		return current, nil
	}
	return Document{}, ErrAlreadyProcessing
}

// RecoverStale returns processing documents claimed before cutoff to pending.
func (r *PGRepo) RecoverStale(ctx context.Context, cutoff, at time.Time) ([]string, error) {
	const query = `
UPDATE documents
SET status = 'pending',
    claim_id = NULL,
    updated_at = $2
WHERE status = 'processing' AND claimed_at < $1
RETURNING id`

	rows, err := r.DB.QueryContext(ctx, query, cutoff.UTC(), at.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListEligible returns pending and retryable error documents below the attempt ceiling.
func (r *PGRepo) ListEligible(ctx context.Context, q EligibleQuery) ([]Document, error) {
	maxAttempts := q.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1 << 30
	}
	limit := q.Limit
	if limit <= 0 {
		limit = maxListLimit
	}
	query := `SELECT ` + documentColumns + `
FROM documents
WHERE attempt_count < $1
  AND (status = 'pending' OR (status = 'error' AND COALESCE(error_retryable, TRUE)))
ORDER BY updated_at ASC, id ASC
LIMIT $2`
	return r.queryDocuments(ctx, query, maxAttempts, limit)
}

// AssignVehicle sets vehicle_ref without changing the status.
func (r *PGRepo) AssignVehicle(ctx context.Context, id, vehicleRef string, at time.Time) (Document, error) {
	query := `
UPDATE documents
SET vehicle_ref = $2,
    updated_at = $3
WHERE id = $1
RETURNING ` + documentColumns

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id, nullString(vehicleRef), at.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

func (r *PGRepo) commitResult(ctx context.Context, id string, doc Document, err error) (Document, error) {
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Document{}, err
	}
	if err := r.exists(ctx, id); err != nil {
		return Document{}, err
	}
	return Document{}, ErrStaleClaim
}

func (r *PGRepo) exists(ctx context.Context, id string) error {
	var found int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = $1`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *PGRepo) queryDocuments(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc         Document
		vehicleRef  sql.NullString
		docType     sql.NullString
		source      string
		status      string
		fields      []byte
		issues      []byte
		raw         []byte
		errorCode   sql.NullString
		errorDetail sql.NullString
		retryable   sql.NullBool
		claimID     sql.NullString
		claimedAt   sql.NullTime
	)
	err := row.Scan(
		&doc.ID,
		&vehicleRef,
		&docType,
		&doc.RawUploadRef,
		&doc.MimeType,
		&doc.SizeBytes,
		&source,
		&status,
		&fields,
		&issues,
		&raw,
		&errorCode,
		&errorDetail,
		&retryable,
		&doc.AttemptCount,
		&claimID,
		&claimedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	doc.VehicleRef = vehicleRef.String
	doc.Type = Type(docType.String)
	doc.Source = Source(source)
	doc.Status = Status(status)
	doc.ErrorCode = errorCode.String
	doc.ErrorDetail = errorDetail.String
	if retryable.Valid {
		v := retryable.Bool
		doc.ErrorRetryable = &v
	}
	doc.ClaimID = claimID.String
	if claimedAt.Valid {
		t := claimedAt.Time
		doc.ClaimedAt = &t
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &doc.ExtractedFields); err != nil {
			return Document{}, fmt.Errorf("decode extracted_fields: %w", err)
		}
	}
	if len(issues) > 0 {
		if err := json.Unmarshal(issues, &doc.FieldIssues); err != nil {
			return Document{}, fmt.Errorf("decode field_issues: %w", err)
		}
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc.RawExtraction); err != nil {
			return Document{}, fmt.Errorf("decode raw_extraction: %w", err)
		}
	}
	return doc, nil
}

func marshalJSON(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if val == nil {
			return nil, nil
		}
	case []FieldIssue:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
