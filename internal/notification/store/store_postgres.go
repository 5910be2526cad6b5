package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hemogrid/internal/notification/models"
	id "hemogrid/pkg/domain"
	txctx "hemogrid/pkg/platform/tx"
)

// PostgresStore persists notifications. Each write is independent and never
// joins a caller transaction, so one failed insert cannot poison siblings.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, recipient_id, blood_request_id, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(n.ID), uuid.UUID(n.RecipientID), uuid.UUID(n.RequestID), n.Message, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipient id.UserID, unreadOnly bool) ([]*models.Notification, error) {
	query := `
		SELECT id, recipient_id, blood_request_id, message, is_read, created_at
		FROM notifications
		WHERE recipient_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
	`
	rows, err := txctx.Conn(ctx, s.db).QueryContext(ctx, query, uuid.UUID(recipient), unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// MarkRead only touches rows owned by recipient. An empty ids slice marks all.
func (s *PostgresStore) MarkRead(ctx context.Context, recipient id.UserID, ids []id.NotificationID) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if len(ids) == 0 {
		result, err = s.db.ExecContext(ctx,
			`UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`,
			uuid.UUID(recipient),
		)
	} else {
		raw := make([]string, 0, len(ids))
		for _, nid := range ids {
			raw = append(raw, nid.String())
		}
		result, err = s.db.ExecContext(ctx,
			`UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND id = ANY($2::uuid[]) AND NOT is_read`,
			uuid.UUID(recipient), pq.Array(raw),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read rows affected: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) CountUnread(ctx context.Context, recipient id.UserID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT is_read`,
		uuid.UUID(recipient),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func scanNotification(row interface{ Scan(dest ...any) error }) (*models.Notification, error) {
	var (
		n                       models.Notification
		nid, recipient, request uuid.UUID
	)
	if err := row.Scan(&nid, &recipient, &request, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.ID = id.NotificationID(nid)
	n.RecipientID = id.UserID(recipient)
	n.RequestID = id.RequestID(request)
	return &n, nil
}
