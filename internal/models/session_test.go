package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionHasAnyRole(t *testing.T) {
	staff := &Session{UserID: "staff-1", Role: RoleStaff}

	assert.True(t, staff.HasAnyRole(RoleStaff, RoleAdmin))
	assert.False(t, staff.HasAnyRole(RoleAdmin))
	assert.False(t, staff.HasAnyRole())

	var missing *Session
	assert.False(t, missing.HasAnyRole(RoleViewer))
	assert.True(t, AnonymousSession().HasAnyRole(RoleViewer))
}

func TestSessionAuthenticated(t *testing.T) {
	var missing *Session
	assert.False(t, missing.Authenticated())
	assert.False(t, AnonymousSession().Authenticated())
	assert.True(t, (&Session{UserID: "u-1", Role: RoleStudent}).Authenticated())
}
