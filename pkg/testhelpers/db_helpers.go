package testhelpers

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// CreateTestUser inserts a minimal valid user row and returns its ID.
func CreateTestUser(t *testing.T, db *pgxpool.Pool, name, email, role string, active bool) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(context.Background(),
		"INSERT INTO users (name, email, role, is_active) VALUES ($1, $2, $3, $4) RETURNING id",
		name, email, role, active).Scan(&id)
	require.NoError(t, err)
	return id
}

// TruncateUsers empties the users table and resets its sequence.
func TruncateUsers(t *testing.T, db *pgxpool.Pool) {
	t.Helper()

	_, err := db.Exec(context.Background(), "TRUNCATE TABLE users RESTART IDENTITY CASCADE")
	require.NoError(t, err)
}
