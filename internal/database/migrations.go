package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		phone VARCHAR(50) NOT NULL DEFAULT '',
		role VARCHAR(50),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS user_roles (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		role VARCHAR(50) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE(user_id, role)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_user_roles_user_id ON user_roles(user_id)`,

	// Roles must stay within the care domain even when written by tooling
	`DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM information_schema.constraint_column_usage
			WHERE table_name = 'user_roles' AND constraint_name = 'user_roles_role_check'
		) THEN
			ALTER TABLE user_roles ADD CONSTRAINT user_roles_role_check
				CHECK (role IN ('client', 'caregiver', 'admin'));
		END IF;
	END $$`,
}

func (db *DB) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
