package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
)

type sessionCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type userDirectorySync interface {
	Sync(ctx context.Context, user models.User) error
}

// IdentityConfig defines how identity-provider session tokens are verified.
type IdentityConfig struct {
	Secret   string
	Issuer   string
	CacheTTL time.Duration
}

// IdentityService resolves opaque session tokens into a Session.
type IdentityService struct {
	config    IdentityConfig
	cache     sessionCache
	directory userDirectorySync
	logger    *zap.Logger
	now       func() time.Time
}

// NewIdentityService constructs the resolver. cache may be nil.
func NewIdentityService(config IdentityConfig, cache sessionCache, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	return &IdentityService{config: config, cache: cache, logger: logger, now: time.Now}
}

// WithDirectory mirrors every freshly verified identity into the users table
// so rows that reference the caller satisfy their foreign keys.
func (s *IdentityService) WithDirectory(directory userDirectorySync) *IdentityService {
	s.directory = directory
	return s
}

// Resolve verifies token and returns the caller's session. It never falls
// back to a default role.
func (s *IdentityService) Resolve(ctx context.Context, token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "missing session token")
	}

	key := sessionCacheKey(token)
	if s.cache != nil {
		var cached models.Session
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit && cached.Authenticated() && cached.Role.Valid() {
			return &cached, nil
		}
	}

	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	session := &models.Session{UserID: claims.UserID, Role: claims.Role}
	if s.directory != nil {
		user := models.User{ID: claims.UserID, Email: strings.TrimSpace(claims.Email), FullName: strings.TrimSpace(claims.Name), Role: claims.Role}
		if err := s.directory.Sync(ctx, user); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register session user")
		}
	}
	if s.cache != nil {
		ttl := s.config.CacheTTL
		if claims.ExpiresAt != nil {
			if remaining := claims.ExpiresAt.Time.Sub(s.now()); remaining < ttl {
				ttl = remaining
			}
		}
		if ttl > 0 {
			if err := s.cache.Set(ctx, key, session, ttl); err != nil {
				s.logger.Debug("session cache write skipped", zap.Error(err))
			}
		}
	}
	return session, nil
}

func (s *IdentityService) parse(token string) (*models.SessionClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &models.SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthenticated.Code, appErrors.ErrUnauthenticated.Status, "invalid session token")
	}
	claims, ok := parsed.Claims.(*models.SessionClaims)
	if !ok || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid session claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "session token has no user id")
	}
	role, ok := models.ParseRole(string(claims.Role))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, fmt.Sprintf("session token carries unknown role %q", claims.Role))
	}
	claims.Role = role
	return claims, nil
}

// IssueToken signs a session token with the shared secret. The identity
// provider is the real issuer; this exists for local tooling and tests.
func (s *IdentityService) IssueToken(userID string, role models.UserRole, ttl time.Duration) (string, error) {
	issuedAt := s.now().UTC()
	claims := &models.SessionClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
}

func sessionCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + hex.EncodeToString(sum[:])
}
