package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

var publicationRowColumns = []string{"id", "source_submission_id", "title", "abstract", "authors", "domain", "keywords", "content_ref", "approved_by", "published_at"}

func TestCreatePublicationIfAbsentReturnsStoredRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPublicationRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (source_submission_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM publications WHERE source_submission_id = $1")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows(publicationRowColumns).
			AddRow("pub-first", "sub-1", "Dark matter", "Abstract", "{Ada}", "physics", "{}", "doc://1", "rev-1", now))

	pub, err := repo.CreateIfAbsent(context.Background(), nil, &models.Publication{
		SourceSubmissionID: "sub-1",
		Title:              "Dark matter",
		Authors:            pq.StringArray{"Ada"},
		Keywords:           pq.StringArray{},
		ApprovedBy:         "rev-2",
		PublishedAt:        now,
	})
	require.NoError(t, err)
	assert.Equal(t, "pub-first", pub.ID)
	assert.Equal(t, "rev-1", pub.ApprovedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPublicationsByDomain(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPublicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM publications WHERE domain = $1 ORDER BY published_at DESC, id ASC LIMIT 20 OFFSET 0")).
		WithArgs("physics").
		WillReturnRows(sqlmock.NewRows(publicationRowColumns))

	pubs, err := repo.List(context.Background(), models.PublicationFilter{Domain: "physics"})
	require.NoError(t, err)
	assert.Empty(t, pubs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAuditOrdering(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "submission_id", "actor_user_id", "action", "from_state", "to_state", "note", "occurred_at"}).
		AddRow(int64(1), "sub-1", "owner-1", "CREATED", nil, "PENDING", nil, now).
		AddRow(int64(2), "sub-1", "rev-1", "APPROVED", "PENDING", "APPROVED", "looks good", now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE submission_id = $1 ORDER BY occurred_at ASC, id ASC")).
		WithArgs("sub-1").
		WillReturnRows(rows)

	entries, err := repo.ListBySubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].FromState)
	require.NotNil(t, entries[1].FromState)
	assert.Equal(t, models.StatePending, *entries[1].FromState)
	assert.Equal(t, "looks good", entries[1].NoteText())
	assert.NoError(t, mock.ExpectationsWereMet())
}
