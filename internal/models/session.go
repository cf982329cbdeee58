package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of an identity-provider session token.
type SessionClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email,omitempty"`
	Name   string   `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Session is the resolved caller identity passed explicitly into every core operation.
type Session struct {
	UserID string   `json:"userId"`
	Role   UserRole `json:"role"`
}

// AnonymousSession is used on read paths when no identity can be resolved.
func AnonymousSession() *Session {
	return &Session{Role: RoleViewer}
}

// Authenticated reports whether the session carries a resolved identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// HasAnyRole reports whether the session holds one of the required roles.
func (s *Session) HasAnyRole(required ...UserRole) bool {
	if s == nil {
		return false
	}
	for _, role := range required {
		if s.Role == role {
			return true
		}
	}
	return false
}
