package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("the email has already been taken")
)

//go:generate mockgen -destination=./mock_users_repo.go -package=users . UserRepository

type UserRepository interface {
	ListUsers(ctx context.Context, f ListFilters) ([]User, int, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, in UserInput) (User, error)
	UpdateUser(ctx context.Context, id int64, in UserInput) (User, error)
	DeleteUser(ctx context.Context, id int64) error
	Stats(ctx context.Context) (Stats, error)
}

type postgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) UserRepository {
	return &postgresUserRepository{pool: pool}
}

const userColumns = `id, name, email, role, phone, website, company, bio, avatar, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.Phone, &u.Website, &u.Company, &u.Bio, &u.Avatar, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	u.Role = Role(role)
	return u, err
}

func (r *postgresUserRepository) CreateUser(ctx context.Context, in UserInput) (User, error) {
	query := `INSERT INTO users (name, email, role, phone, website, company, bio, avatar, is_active, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
              RETURNING ` + userColumns
	row := r.pool.QueryRow(ctx, query, in.Name, in.Email, string(in.Role), in.Phone, in.Website, in.Company, in.Bio, in.Avatar, activeOrDefault(in.IsActive))

	u, err := scanUser(row)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *postgresUserRepository) UpdateUser(ctx context.Context, id int64, in UserInput) (User, error) {
	query := `UPDATE users
              SET name = $1, email = $2, role = $3, phone = $4, website = $5, company = $6,
                  bio = $7, avatar = $8, is_active = $9, updated_at = NOW()
              WHERE id = $10
              RETURNING ` + userColumns
	row := r.pool.QueryRow(ctx, query, in.Name, in.Email, string(in.Role), in.Phone, in.Website, in.Company, in.Bio, in.Avatar, activeOrDefault(in.IsActive), id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *postgresUserRepository) DeleteUser(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *postgresUserRepository) GetUserByID(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *postgresUserRepository) ListUsers(ctx context.Context, f ListFilters) ([]User, int, error) {
	where, args := buildListWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	limit, offset := f.PerPage, (f.Page-1)*f.PerPage
	query := `SELECT ` + userColumns + ` FROM users` + where +
		` ORDER BY ` + orderClause(f.SortBy, f.SortOrder) +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	list := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *postgresUserRepository) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByRole: make(map[Role]int, len(Roles))}
	for _, role := range Roles {
		stats.ByRole[role] = 0
	}

	row := r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active), COUNT(*) FILTER (WHERE NOT is_active) FROM users`)
	if err := row.Scan(&stats.Total, &stats.Active, &stats.Inactive); err != nil {
		return Stats{}, fmt.Errorf("count stats: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return Stats{}, fmt.Errorf("count by role: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return Stats{}, err
		}
		stats.ByRole[Role(role)] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// buildListWhere renders the WHERE clause shared by the count and page queries.
func buildListWhere(f ListFilters) (string, []any) {
	var conds []string
	var args []any

	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, "(name ILIKE $"+n+" OR email ILIKE $"+n+" OR role ILIKE $"+n+" OR company ILIKE $"+n+")")
	}
	if f.Role != "" {
		args = append(args, string(f.Role))
		conds = append(conds, "role = $"+strconv.Itoa(len(args)))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		conds = append(conds, "is_active = $"+strconv.Itoa(len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var sortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"email":      "email",
	"role":       "role",
	"company":    "company",
	"created_at": "created_at",
}

func orderClause(sortBy, sortOrder string) string {
	col, ok := sortColumns[strings.ToLower(sortBy)]
	if !ok {
		col = "id"
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	if col == "id" {
		return "id " + dir
	}
	return col + " " + dir + ", id " + dir
}

func activeOrDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
