package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"hemogrid/internal/donor/models"
	"hemogrid/internal/platform/postgres"
	id "hemogrid/pkg/domain"
	"hemogrid/pkg/platform/sentinel"
	txctx "hemogrid/pkg/platform/tx"
)

// PostgresStore persists directory entries in the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const donorColumns = `id, email, full_name, role, is_verified, availability_status, COALESCE(blood_group, ''), created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *models.Donor) error {
	query := `
		INSERT INTO users (id, email, full_name, role, is_verified, availability_status, blood_group, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
	`
	_, err := txctx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(d.ID), d.Email, d.FullName, d.Role, d.IsVerified, d.Availability, d.BloodGroup, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if _, dup := postgres.UniqueViolation(err); dup {
			return fmt.Errorf("create user: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM users WHERE id = $1`
	d, err := scanDonor(txctx.Conn(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return d, nil
}

// FindEligible applies the same predicate as models.Donor.IsEligibleFor.
func (s *PostgresStore) FindEligible(ctx context.Context, bloodGroup id.BloodGroup, exclude id.UserID) ([]id.UserID, error) {
	query := `
		SELECT id FROM users
		WHERE role = $1
		  AND is_verified
		  AND availability_status = $2
		  AND blood_group = $3
		  AND id <> $4
		ORDER BY created_at
	`
	rows, err := txctx.Conn(ctx, s.db).QueryContext(ctx, query,
		models.RoleDonor, models.AvailabilityAvailable, bloodGroup, uuid.UUID(exclude),
	)
	if err != nil {
		return nil, fmt.Errorf("find eligible donors: %w", err)
	}
	defer rows.Close()

	var ids []id.UserID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan eligible donor: %w", err)
		}
		ids = append(ids, id.UserID(u))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligible donors: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) ListAvailable(ctx context.Context, bloodGroup id.BloodGroup) ([]*models.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM users
		WHERE role = $1 AND availability_status = $2 AND ($3 = '' OR blood_group = $3)
		ORDER BY created_at`
	rows, err := txctx.Conn(ctx, s.db).QueryContext(ctx, query,
		models.RoleDonor, models.AvailabilityAvailable, string(bloodGroup),
	)
	if err != nil {
		return nil, fmt.Errorf("list available donors: %w", err)
	}
	defer rows.Close()

	var out []*models.Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donors: %w", err)
	}
	return out, nil
}

// Execute locks the row FOR UPDATE, validates, mutates and writes back. It
// joins the caller's transaction when one is in the context.
func (s *PostgresStore) Execute(ctx context.Context, userID id.UserID, validate func(*models.Donor) error, mutate func(*models.Donor)) (*models.Donor, error) {
	if sqlTx, ok := txctx.From(ctx); ok {
		return s.execute(ctx, sqlTx, userID, validate, mutate)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()
	d, err := s.execute(ctx, sqlTx, userID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) execute(ctx context.Context, sqlTx *sql.Tx, userID id.UserID, validate func(*models.Donor) error, mutate func(*models.Donor)) (*models.Donor, error) {
	query := `SELECT ` + donorColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	d, err := scanDonor(sqlTx.QueryRowContext(ctx, query, uuid.UUID(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if err := validate(d); err != nil {
		return nil, err
	}
	mutate(d)

	update := `
		UPDATE users
		SET role = $2, is_verified = $3, availability_status = $4, blood_group = NULLIF($5, ''), full_name = $6, updated_at = $7
		WHERE id = $1
	`
	if _, err := sqlTx.ExecContext(ctx, update,
		uuid.UUID(d.ID), d.Role, d.IsVerified, d.Availability, d.BloodGroup, d.FullName, d.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Count(ctx context.Context) (models.Counts, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE role = $1 AND is_verified)
		FROM users
	`
	var counts models.Counts
	if err := txctx.Conn(ctx, s.db).QueryRowContext(ctx, query, models.RoleDonor).
		Scan(&counts.TotalUsers, &counts.VerifiedDonors); err != nil {
		return models.Counts{}, fmt.Errorf("count users: %w", err)
	}
	return counts, nil
}

func scanDonor(row interface{ Scan(dest ...any) error }) (*models.Donor, error) {
	var (
		d          models.Donor
		u          uuid.UUID
		bloodGroup string
	)
	if err := row.Scan(&u, &d.Email, &d.FullName, &d.Role, &d.IsVerified, &d.Availability, &bloodGroup, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID = id.UserID(u)
	d.BloodGroup = id.BloodGroup(bloodGroup)
	return &d, nil
}
