package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ebonics/ebonics-core/internal/database"
	"github.com/ebonics/ebonics-core/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ProfileService struct {
	db *database.DB
}

func NewProfileService(db *database.DB) *ProfileService {
	return &ProfileService{db: db}
}

// GetByID returns (nil, nil) when no profile row exists. A signed-up identity
// without a profile is an expected (recoverable) state, not an error.
func (s *ProfileService) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, email, name, phone, role, created_at
		FROM profiles WHERE id = $1
	`, id).Scan(
		&profile.ID, &profile.Email, &profile.Name, &profile.Phone,
		&profile.Role, &profile.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return &profile, nil
}

// Create inserts a profile row for a newly verified identity. Idempotent so a
// retried verification does not fail.
func (s *ProfileService) Create(ctx context.Context, profile *models.Profile) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO profiles (id, email, name, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, profile.ID, profile.Email, profile.Name, profile.Phone)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (s *ProfileService) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT role FROM user_roles WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}
	return roles, nil
}

// SwapRole replaces oldRole with newRole in one transaction. The removal is
// tolerant of the old role being absent; the insert is idempotent. The
// denormalized profiles.role display column is kept in step but is never
// consulted for routing.
func (s *ProfileService) SwapRole(ctx context.Context, userID uuid.UUID, oldRole, newRole string) error {
	if !models.KnownRole(newRole) {
		return fmt.Errorf("unknown role: %s", newRole)
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM user_roles WHERE user_id = $1 AND role = $2
	`, userID, oldRole); err != nil {
		return fmt.Errorf("failed to remove old role: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		ON CONFLICT (user_id, role) DO NOTHING
	`, userID, newRole); err != nil {
		return fmt.Errorf("failed to assign new role: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE profiles SET role = $1, updated_at = NOW() WHERE id = $2
	`, newRole, userID); err != nil {
		return fmt.Errorf("failed to update profile role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit role swap: %w", err)
	}
	return nil
}
