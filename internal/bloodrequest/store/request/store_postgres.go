package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hemogrid/internal/bloodrequest/models"
	"hemogrid/internal/platform/postgres"
	id "hemogrid/pkg/domain"
	"hemogrid/pkg/platform/sentinel"
	txctx "hemogrid/pkg/platform/tx"
)

// PostgresStore persists requests in the blood_requests table. Every method
// joins the transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, requester_id, blood_group, quantity, location, contact_info, details, status, urgency, is_active, created_at, updated_at, expires_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *PostgresStore) Create(ctx context.Context, r *models.BloodRequest) error {
	query := `
		INSERT INTO blood_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := txctx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.ID), uuid.UUID(r.RequesterID), r.BloodGroup, r.Quantity, r.Location, r.ContactInfo, r.Details,
		r.Status, r.Urgency, r.IsActive, r.CreatedAt, r.UpdatedAt, nullTime(r.ExpiresAt),
	)
	if err != nil {
		if _, dup := postgres.UniqueViolation(err); dup {
			return fmt.Errorf("create request: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	return s.find(ctx, `SELECT `+requestColumns+` FROM blood_requests WHERE id = $1`, requestID)
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
// Without a transaction in ctx the lock is released immediately.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, requestID id.RequestID) (*models.BloodRequest, error) {
	return s.find(ctx, `SELECT `+requestColumns+` FROM blood_requests WHERE id = $1 FOR UPDATE`, requestID)
}

func (s *PostgresStore) find(ctx context.Context, query string, requestID id.RequestID) (*models.BloodRequest, error) {
	r, err := scanRequest(txctx.Conn(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find request: %w", err)
	}
	return r, nil
}

// UpdateStatus is a compare-and-set on status. Zero affected rows means another
// writer moved the request first.
func (s *PostgresStore) UpdateStatus(ctx context.Context, r *models.BloodRequest, expected models.Status) error {
	query := `
		UPDATE blood_requests
		SET status = $3, is_active = $4, updated_at = $5
		WHERE id = $1 AND status = $2
	`
	res, err := txctx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.ID), expected, r.Status, r.IsActive, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("request %s no longer %s: %w", r.ID, expected, sentinel.ErrConflict)
	}
	return nil
}

// ListActive expresses models.ListFilter.Matches in SQL.
func (s *PostgresStore) ListActive(ctx context.Context, filter models.ListFilter) ([]*models.BloodRequest, error) {
	order := "DESC"
	if filter.Order == models.OrderOldestFirst {
		order = "ASC"
	}
	search := ""
	if filter.Search != "" {
		search = "%" + likeEscaper.Replace(filter.Search) + "%"
	}
	query := `
		SELECT ` + requestColumns + ` FROM blood_requests
		WHERE is_active
		  AND requester_id <> $1
		  AND ($2::text = '' OR blood_group = $2)
		  AND ($3::text = '' OR urgency = $3)
		  AND ($4::text = '' OR location ILIKE $4 OR details ILIKE $4)
		ORDER BY created_at ` + order + `, id ` + order + `
		LIMIT NULLIF($5, 0) OFFSET $6
	`
	return s.list(ctx, query,
		uuid.UUID(filter.Exclude), string(filter.BloodGroup), string(filter.Urgency), search, filter.Limit, filter.Offset,
	)
}

func (s *PostgresStore) ListByRequester(ctx context.Context, requester id.UserID) ([]*models.BloodRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM blood_requests WHERE requester_id = $1 ORDER BY created_at DESC, id DESC`
	return s.list(ctx, query, uuid.UUID(requester))
}

func (s *PostgresStore) ListByIDs(ctx context.Context, ids []id.RequestID) (map[id.RequestID]*models.BloodRequest, error) {
	out := make(map[id.RequestID]*models.BloodRequest, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, 0, len(ids))
	for _, requestID := range ids {
		raw = append(raw, requestID.String())
	}
	query := `SELECT ` + requestColumns + ` FROM blood_requests WHERE id = ANY($1::uuid[])`
	rs, err := s.list(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, err
	}
	for _, r := range rs {
		out[r.ID] = r
	}
	return out, nil
}

// ExpirePending cancels overdue pending requests in one statement so a sweep
// never interleaves with an acceptance on the same row.
func (s *PostgresStore) ExpirePending(ctx context.Context, now time.Time) ([]id.RequestID, error) {
	query := `
		UPDATE blood_requests
		SET status = $2, is_active = FALSE, updated_at = $1
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $1
		RETURNING id
	`
	rows, err := txctx.Conn(ctx, s.db).QueryContext(ctx, query, now, models.StatusCancelled, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("expire pending requests: %w", err)
	}
	defer rows.Close()

	var expired []id.RequestID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan expired request: %w", err)
		}
		expired = append(expired, id.RequestID(u))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired requests: %w", err)
	}
	return expired, nil
}

func (s *PostgresStore) ListAll(ctx context.Context, status models.Status, page models.Page) ([]*models.BloodRequest, error) {
	query := `
		SELECT ` + requestColumns + ` FROM blood_requests
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0) OFFSET $3
	`
	return s.list(ctx, query, string(status), page.Limit, page.Offset)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := txctx.Conn(ctx, s.db).QueryContext(ctx, `SELECT status, COUNT(*) FROM blood_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var (
			status models.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan request count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.BloodRequest, error) {
	rows, err := txctx.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []*models.BloodRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

func scanRequest(row interface{ Scan(dest ...any) error }) (*models.BloodRequest, error) {
	var (
		r         models.BloodRequest
		reqID     uuid.UUID
		requester uuid.UUID
		expiresAt sql.NullTime
	)
	if err := row.Scan(&reqID, &requester, &r.BloodGroup, &r.Quantity, &r.Location, &r.ContactInfo, &r.Details,
		&r.Status, &r.Urgency, &r.IsActive, &r.CreatedAt, &r.UpdatedAt, &expiresAt); err != nil {
		return nil, err
	}
	r.ID = id.RequestID(reqID)
	r.RequesterID = id.UserID(requester)
	if expiresAt.Valid {
		t := expiresAt.Time
		r.ExpiresAt = &t
	}
	return &r, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
