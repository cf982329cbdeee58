package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Florentin-artemix/Galileo-sub000/internal/dto"
	"github.com/Florentin-artemix/Galileo-sub000/internal/middleware"
	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
)

type submissionServiceMock struct {
	createReq     dto.CreateSubmissionRequest
	createErr     error
	listStates    []string
	listLimit     int
	transitionReq dto.TransitionRequest
	transitionErr error
	session       *models.Session
}

func (m *submissionServiceMock) Create(ctx context.Context, session *models.Session, req dto.CreateSubmissionRequest) (*models.Submission, error) {
	m.session = session
	m.createReq = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Submission{ID: "sub-1", Title: req.Title, State: models.StatePending}, nil
}

func (m *submissionServiceMock) ListMine(ctx context.Context, session *models.Session, states []string, limit, offset int) ([]models.Submission, error) {
	m.listStates = states
	m.listLimit = limit
	return []models.Submission{{ID: "sub-1"}}, nil
}

func (m *submissionServiceMock) Get(ctx context.Context, session *models.Session, id string) (*models.Submission, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
}

func (m *submissionServiceMock) Transition(ctx context.Context, session *models.Session, id string, req dto.TransitionRequest) (*dto.TransitionResponse, error) {
	m.transitionReq = req
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	return &dto.TransitionResponse{Submission: &models.Submission{ID: id, State: models.StateApproved}}, nil
}

type auditServiceMock struct {
	exportFormat string
}

func (m *auditServiceMock) ListAudit(ctx context.Context, session *models.Session, submissionID string) ([]models.AuditEntry, error) {
	return []models.AuditEntry{{ID: 1, SubmissionID: submissionID, Action: models.AuditActionCreated}}, nil
}

func (m *auditServiceMock) AddNote(ctx context.Context, session *models.Session, submissionID string, req dto.NoteRequest) (*models.AuditEntry, error) {
	note := req.Note
	return &models.AuditEntry{ID: 2, SubmissionID: submissionID, Action: models.AuditActionNote, Note: &note}, nil
}

func (m *auditServiceMock) VerifyConsistency(ctx context.Context, session *models.Session, submissionID string) (*dto.AuditConsistency, error) {
	return &dto.AuditConsistency{SubmissionID: submissionID, Consistent: true}, nil
}

func (m *auditServiceMock) ExportAudit(ctx context.Context, session *models.Session, submissionID, format string) (*dto.AuditExport, error) {
	m.exportFormat = format
	return &dto.AuditExport{Filename: "audit-" + submissionID + ".csv", ContentType: "text/csv; charset=utf-8", Body: []byte("id\n1\n")}, nil
}

func testContext(method, target, body string, session *models.Session) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	if session != nil {
		c.Set(middleware.ContextSessionKey, session)
	}
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSubmissionHandlerCreate(t *testing.T) {
	svc := &submissionServiceMock{}
	h := NewSubmissionHandler(svc, &auditServiceMock{})
	student := &models.Session{UserID: "student-1", Role: models.RoleStudent}

	c, w := testContext(http.MethodPost, "/submissions", `{"title":"Halos","abstract":"a","authors":["A"],"domain":"physics","documentRef":"s3://x"}`, student)
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Halos", svc.createReq.Title)
	assert.Equal(t, student, svc.session)
}

func TestSubmissionHandlerCreateInvalidBody(t *testing.T) {
	svc := &submissionServiceMock{}
	h := NewSubmissionHandler(svc, &auditServiceMock{})

	c, w := testContext(http.MethodPost, "/submissions", `{"title":`, &models.Session{UserID: "student-1", Role: models.RoleStudent})
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.createReq.Title)
}

func TestSubmissionHandlerTransitionConflict(t *testing.T) {
	svc := &submissionServiceMock{transitionErr: appErrors.Clone(appErrors.ErrConflict, "submission is APPROVED")}
	h := NewSubmissionHandler(svc, &auditServiceMock{})

	c, w := testContext(http.MethodPost, "/submissions/sub-1/transitions", `{"action":"REJECT","note":"late"}`, &models.Session{UserID: "staff-1", Role: models.RoleStaff})
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	h.Transition(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.ActionReject, svc.transitionReq.Action)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "CONFLICT", body["error"].(map[string]interface{})["code"])
}

func TestSubmissionHandlerGetNotFound(t *testing.T) {
	h := NewSubmissionHandler(&submissionServiceMock{}, &auditServiceMock{})
	c, w := testContext(http.MethodGet, "/submissions/other", "", &models.Session{UserID: "student-2", Role: models.RoleStudent})
	c.Params = gin.Params{{Key: "id", Value: "other"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmissionHandlerListMineParsesStates(t *testing.T) {
	svc := &submissionServiceMock{}
	h := NewSubmissionHandler(svc, &auditServiceMock{})
	c, w := testContext(http.MethodGet, "/submissions/mine?state=pending,%20rejected&limit=5", "", &models.Session{UserID: "student-1", Role: models.RoleStudent})
	h.ListMine(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"pending", "rejected"}, svc.listStates)
	assert.Equal(t, 5, svc.listLimit)
	body := decodeEnvelope(t, w)
	assert.NotNil(t, body["pagination"])
}

func TestSubmissionHandlerExportAudit(t *testing.T) {
	audit := &auditServiceMock{}
	h := NewSubmissionHandler(&submissionServiceMock{}, audit)
	c, w := testContext(http.MethodGet, "/submissions/sub-1/audit/export?format=csv", "", &models.Session{UserID: "student-1", Role: models.RoleStudent})
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	h.ExportAudit(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", audit.exportFormat)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audit-sub-1.csv")
}

func TestSubmissionHandlerAddNote(t *testing.T) {
	h := NewSubmissionHandler(&submissionServiceMock{}, &auditServiceMock{})
	c, w := testContext(http.MethodPost, "/submissions/sub-1/notes", `{"note":"checked refs"}`, &models.Session{UserID: "staff-1", Role: models.RoleStaff})
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	h.AddNote(c)
	assert.Equal(t, http.StatusCreated, w.Code)
}
