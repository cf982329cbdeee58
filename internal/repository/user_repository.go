package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

const userColumns = `id, email, full_name, role, created_at`

const pqForeignKeyViolation = "23503"

// ErrUnknownUser reports a write that referenced a user missing from the
// directory mirror.
var ErrUnknownUser = errors.New("user is not present in the directory")

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// UserRepository reads the directory mirror of identity-provider users and
// manages reviewer domain watches.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Sync mirrors an authenticated identity into the directory. The role always
// follows the identity provider; email and name only overwrite when supplied.
func (r *UserRepository) Sync(ctx context.Context, user models.User) error {
	const query = `INSERT INTO users (id, email, full_name, role, created_at) VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role,
	email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
	full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), users.full_name)`
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.FullName, user.Role, createdAt); err != nil {
		return fmt.Errorf("sync user: %w", err)
	}
	return nil
}

// ListByRoles returns users holding any of roles, ordered by id.
func (r *UserRepository) ListByRoles(ctx context.Context, roles []models.UserRole) ([]models.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders, args := rolePlaceholders(roles, 0)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role IN (%s) ORDER BY id ASC`, userColumns, placeholders)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	return users, nil
}

// ListDomainWatchers returns users with one of roles that watch domain.
func (r *UserRepository) ListDomainWatchers(ctx context.Context, domain string, roles []models.UserRole) ([]models.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders, args := rolePlaceholders(roles, 1)
	args = append([]interface{}{domain}, args...)
	query := fmt.Sprintf(`SELECT u.id, u.email, u.full_name, u.role, u.created_at
	FROM users u JOIN reviewer_domain_watches w ON w.user_id = u.id
	WHERE w.domain = $1 AND u.role IN (%s) ORDER BY u.id ASC`, placeholders)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("list domain watchers: %w", err)
	}
	return users, nil
}

// WatchDomain subscribes userID to domain. Re-watching is a no-op.
func (r *UserRepository) WatchDomain(ctx context.Context, userID, domain string, at time.Time) error {
	const query = `INSERT INTO reviewer_domain_watches (user_id, domain, created_at) VALUES ($1, $2, $3)
	ON CONFLICT (user_id, domain) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, domain, at); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("watch domain: %w", ErrUnknownUser)
		}
		return fmt.Errorf("watch domain: %w", err)
	}
	return nil
}

// UnwatchDomain removes a subscription if present.
func (r *UserRepository) UnwatchDomain(ctx context.Context, userID, domain string) error {
	const query = `DELETE FROM reviewer_domain_watches WHERE user_id = $1 AND domain = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, domain); err != nil {
		return fmt.Errorf("unwatch domain: %w", err)
	}
	return nil
}

func rolePlaceholders(roles []models.UserRole, offset int) (string, []interface{}) {
	parts := make([]string, len(roles))
	args := make([]interface{}, len(roles))
	for i, role := range roles {
		parts[i] = fmt.Sprintf("$%d", offset+i+1)
		args[i] = role
	}
	return strings.Join(parts, ","), args
}
