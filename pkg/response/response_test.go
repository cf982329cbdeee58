package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/middleware/requestid"
)

func serve(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(requestid.Middleware())
	router.GET("/", handler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestErrorMarksConflictsRetryable(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrConflict, "submission is no longer PENDING"))
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrConflict.Code, body.Error.Code)
	assert.Equal(t, "req-1", body.Meta["requestId"])
	assert.Equal(t, true, body.Meta["retryable"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestErrorForbiddenIsNotRetryable(t *testing.T) {
	rec := serve(func(c *gin.Context) { Error(c, appErrors.ErrForbidden) })

	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	_, flagged := body.Meta["retryable"]
	assert.False(t, flagged)
}

func TestAttachmentSanitisesFilename(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		Attachment(c, "audit-\"sub\"/1.csv", "text/csv", []byte("a,b\n"))
	})

	assert.Equal(t, `attachment; filename="audit-_sub__1.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", rec.Body.String())
}

func TestNoContentFlushesStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPut, "/", nil)

	NoContent(c)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
