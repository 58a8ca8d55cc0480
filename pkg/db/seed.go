package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type seedUser struct {
	Name, Email, Role, Phone, Website, Company, Bio, Avatar string
	IsActive                                                bool
}

var seedUsers = []seedUser{
	{"Alice Johnson", "alice@example.com", "Admin", "+1-555-0101", "https://alice.dev", "Tech Corp", "Senior developer with 10+ years of experience", "https://i.pravatar.cc/150?img=1", true},
	{"Bob Smith", "bob@example.com", "Editor", "+1-555-0102", "https://bob.dev", "Design Studio", "Creative designer and content creator", "https://i.pravatar.cc/150?img=2", true},
	{"Charlie Brown", "charlie@example.com", "User", "+1-555-0103", "https://charlie.dev", "Startup Inc", "Entrepreneur and startup enthusiast", "https://i.pravatar.cc/150?img=3", true},
	{"Diana Prince", "diana@example.com", "Admin", "+1-555-0104", "https://diana.dev", "Enterprise Solutions", "Full-stack developer and team lead", "https://i.pravatar.cc/150?img=4", true},
	{"Eve Wilson", "eve@example.com", "Editor", "+1-555-0105", "https://eve.dev", "Media Group", "Content strategist and writer", "https://i.pravatar.cc/150?img=5", false},
}

// Seed inserts the demo users, skipping any whose email already exists.
// It returns how many rows were inserted.
func Seed(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	batch := &pgx.Batch{}
	for _, u := range seedUsers {
		batch.Queue(`INSERT INTO users (name, email, role, phone, website, company, bio, avatar, is_active)
                     VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
                     ON CONFLICT (email) DO NOTHING`,
			u.Name, u.Email, u.Role, u.Phone, u.Website, u.Company, u.Bio, u.Avatar, u.IsActive)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range seedUsers {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
