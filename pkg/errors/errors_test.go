package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("transition: %w", Clone(ErrConflict, "submission is no longer PENDING"))
	assert.True(t, IsCode(err, ErrConflict))
	assert.False(t, IsCode(err, ErrForbidden))
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(ErrValidation))
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, ErrInternal.Code, appErr.Code)

	assert.Equal(t, ErrAlreadyAssigned, FromError(ErrAlreadyAssigned))
	assert.Nil(t, FromError(nil))
}
