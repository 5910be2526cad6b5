package donation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hemogrid/internal/bloodrequest/models"
	"hemogrid/internal/platform/postgres"
	id "hemogrid/pkg/domain"
	"hemogrid/pkg/platform/sentinel"
	txctx "hemogrid/pkg/platform/tx"
)

// Constraint names from schema.sql.
const (
	constraintDonorRequest = "donations_donor_request_key"
	constraintRequest      = "donations_request_key"
)

// PostgresStore persists acceptances in the donations table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const donationColumns = `id, donor_id, blood_request_id, status, accepted_at, updated_at`

// Create maps the two unique constraints onto distinct sentinels so the
// service can tell a repeat acceptance from a lost race.
func (s *PostgresStore) Create(ctx context.Context, d *models.DonationHistory) error {
	query := `INSERT INTO donations (` + donationColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := txctx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(d.ID), uuid.UUID(d.DonorID), uuid.UUID(d.RequestID), d.Status, d.AcceptedAt, d.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	if constraint, dup := postgres.UniqueViolation(err); dup {
		switch constraint {
		case constraintDonorRequest:
			return fmt.Errorf("create donation: %w", sentinel.ErrAlreadyUsed)
		case constraintRequest:
			return fmt.Errorf("create donation: %w", sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("create donation: %w", err)
}

func (s *PostgresStore) Exists(ctx context.Context, donor id.UserID, requestID id.RequestID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM donations WHERE donor_id = $1 AND blood_request_id = $2)`
	var exists bool
	if err := txctx.Conn(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(donor), uuid.UUID(requestID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check donation: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) FindByRequest(ctx context.Context, requestID id.RequestID) (*models.DonationHistory, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE blood_request_id = $1`
	d, err := scanDonation(txctx.Conn(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find donation: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListByDonor(ctx context.Context, donor id.UserID) ([]*models.DonationHistory, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE donor_id = $1 ORDER BY accepted_at DESC`
	rows, err := txctx.Conn(ctx, s.db).QueryContext(ctx, query, uuid.UUID(donor))
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var out []*models.DonationHistory
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, requestID id.RequestID, status models.DonationStatus, now time.Time) error {
	query := `UPDATE donations SET status = $2, updated_at = $3 WHERE blood_request_id = $1`
	if _, err := txctx.Conn(ctx, s.db).ExecContext(ctx, query, uuid.UUID(requestID), status, now); err != nil {
		return fmt.Errorf("update donation: %w", err)
	}
	return nil
}

func (s *PostgresStore) TopDonors(ctx context.Context, limit int) ([]models.DonorCount, error) {
	query := `
		SELECT donor_id, COUNT(*) AS n FROM donations
		GROUP BY donor_id
		ORDER BY n DESC, donor_id
		LIMIT NULLIF($1, 0)
	`
	rows, err := txctx.Conn(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("top donors: %w", err)
	}
	defer rows.Close()

	var out []models.DonorCount
	for rows.Next() {
		var (
			u uuid.UUID
			n int
		)
		if err := rows.Scan(&u, &n); err != nil {
			return nil, fmt.Errorf("scan donor count: %w", err)
		}
		out = append(out, models.DonorCount{DonorID: id.UserID(u), Count: n})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donor counts: %w", err)
	}
	return out, nil
}

func scanDonation(row interface{ Scan(dest ...any) error }) (*models.DonationHistory, error) {
	var (
		d       models.DonationHistory
		u       uuid.UUID
		donor   uuid.UUID
		request uuid.UUID
	)
	if err := row.Scan(&u, &donor, &request, &d.Status, &d.AcceptedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID = id.DonationID(u)
	d.DonorID = id.UserID(donor)
	d.RequestID = id.RequestID(request)
	return &d, nil
}
