package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"userdash/pkg/logging"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

type UserService interface {
	ListUsers(ctx context.Context, f ListFilters) (UserList, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, in UserInput) (User, error)
	UpdateUser(ctx context.Context, id int64, in UserInput) (User, error)
	PatchUser(ctx context.Context, id int64, p UserPatch) (User, error)
	DeleteUser(ctx context.Context, id int64) error
	Stats(ctx context.Context) (Stats, error)
}

// StatsCache stores the last computed aggregate counts.
type StatsCache interface {
	Get(ctx context.Context) (Stats, bool, error)
	Set(ctx context.Context, s Stats) error
	Invalidate(ctx context.Context) error
}

// Notifier is told about newly created users.
type Notifier interface {
	SendWelcome(ctx context.Context, u User) error
}

type ChangeKind string

const (
	ChangeCreated ChangeKind = "user.created"
	ChangeUpdated ChangeKind = "user.updated"
	ChangeDeleted ChangeKind = "user.deleted"
)

// ChangePublisher fans out mutations to live subscribers.
type ChangePublisher interface {
	PublishChange(kind ChangeKind, id int64, u *User)
}

type ServiceOption func(*userService)

func WithStatsCache(c StatsCache) ServiceOption {
	return func(s *userService) { s.cache = c }
}

func WithNotifier(n Notifier) ServiceOption {
	return func(s *userService) { s.notifier = n }
}

func WithChangePublisher(p ChangePublisher) ServiceOption {
	return func(s *userService) { s.publisher = p }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *userService) { s.log = l }
}

type userService struct {
	repo      UserRepository
	cache     StatsCache
	notifier  Notifier
	publisher ChangePublisher
	log       *slog.Logger
}

func NewUserService(repo UserRepository, opts ...ServiceOption) UserService {
	s := &userService{repo: repo, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *userService) ListUsers(ctx context.Context, f ListFilters) (UserList, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	if f.Role != "" && !f.Role.Valid() {
		return UserList{}, &ValidationError{Fields: FieldErrors{"role": {"The selected role is invalid."}}}
	}

	items, total, err := s.repo.ListUsers(ctx, f)
	if err != nil {
		return UserList{}, err
	}
	return UserList{Items: items, Pagination: NewPagination(f.Page, f.PerPage, total)}, nil
}

func (s *userService) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *userService) CreateUser(ctx context.Context, in UserInput) (User, error) {
	in = normalize(in)
	if errs := ValidateInput(in); len(errs) > 0 {
		return User{}, &ValidationError{Fields: errs}
	}

	u, err := s.repo.CreateUser(ctx, in)
	if err != nil {
		return User{}, translateWriteError(err)
	}
	s.afterChange(ctx, ChangeCreated, u.ID, &u)

	if s.notifier != nil {
		if err := s.notifier.SendWelcome(ctx, u); err != nil {
			s.log.Warn("welcome email failed", slog.Int64("user_id", u.ID), logging.Err(err))
		}
	}
	return u, nil
}

func (s *userService) UpdateUser(ctx context.Context, id int64, in UserInput) (User, error) {
	in = normalize(in)
	if errs := ValidateInput(in); len(errs) > 0 {
		return User{}, &ValidationError{Fields: errs}
	}

	u, err := s.repo.UpdateUser(ctx, id, in)
	if err != nil {
		return User{}, translateWriteError(err)
	}
	s.afterChange(ctx, ChangeUpdated, u.ID, &u)
	return u, nil
}

func (s *userService) PatchUser(ctx context.Context, id int64, p UserPatch) (User, error) {
	current, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	return s.UpdateUser(ctx, id, p.Apply(current.Input()))
}

func (s *userService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.afterChange(ctx, ChangeDeleted, id, nil)
	return nil
}

func (s *userService) Stats(ctx context.Context) (Stats, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.log.Warn("stats cache read failed", logging.Err(err))
		} else if ok {
			return cached, nil
		}
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, stats); err != nil {
			s.log.Warn("stats cache write failed", logging.Err(err))
		}
	}
	return stats, nil
}

func (s *userService) afterChange(ctx context.Context, kind ChangeKind, id int64, u *User) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.Warn("stats cache invalidation failed", logging.Err(err))
		}
	}
	if s.publisher != nil {
		s.publisher.PublishChange(kind, id, u)
	}
}

// normalize trims required strings, turns blank optionals into nulls and
// fills the role and active defaults.
func normalize(in UserInput) UserInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = RoleUser
	}
	if in.IsActive == nil {
		active := true
		in.IsActive = &active
	}
	for _, p := range []**string{&in.Phone, &in.Website, &in.Company, &in.Bio, &in.Avatar} {
		if *p != nil && strings.TrimSpace(**p) == "" {
			*p = nil
		}
	}
	return in
}

func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &ValidationError{
			Fields: FieldErrors{"email": {"The email has already been taken."}},
			cause:  ErrEmailTaken,
		}
	}
	return err
}
