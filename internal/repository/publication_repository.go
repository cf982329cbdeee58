package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
)

const publicationColumns = `id, source_submission_id, title, abstract, authors, domain, keywords, content_ref, approved_by, published_at`

// PublicationRepository stores publications keyed uniquely by source submission.
type PublicationRepository struct {
	db *sqlx.DB
}

// NewPublicationRepository constructs the repository.
func NewPublicationRepository(db *sqlx.DB) *PublicationRepository {
	return &PublicationRepository{db: db}
}

// CreateIfAbsent inserts pub through exec, which is usually the approving
// transaction. When a publication already exists for the source submission the
// stored row is returned unchanged.
func (r *PublicationRepository) CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, pub *models.Publication) (*models.Publication, error) {
	if exec == nil {
		exec = r.db
	}
	if pub.ID == "" {
		pub.ID = uuid.NewString()
	}
	const query = `INSERT INTO publications (id, source_submission_id, title, abstract, authors, domain, keywords, content_ref, approved_by, published_at)
	VALUES (:id, :source_submission_id, :title, :abstract, :authors, :domain, :keywords, :content_ref, :approved_by, :published_at)
	ON CONFLICT (source_submission_id) DO NOTHING`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, pub); err != nil {
		return nil, fmt.Errorf("insert publication: %w", err)
	}

	var stored models.Publication
	selectQuery := `SELECT ` + publicationColumns + ` FROM publications WHERE source_submission_id = $1`
	if err := sqlx.GetContext(ctx, exec, &stored, selectQuery, pub.SourceSubmissionID); err != nil {
		return nil, fmt.Errorf("load publication: %w", err)
	}
	return &stored, nil
}

// GetByID fetches a publication.
func (r *PublicationRepository) GetByID(ctx context.Context, id string) (*models.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE id = $1`
	var pub models.Publication
	if err := r.db.GetContext(ctx, &pub, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get publication: %w", err)
	}
	return &pub, nil
}

// List returns publications, newest first.
func (r *PublicationRepository) List(ctx context.Context, filter models.PublicationFilter) ([]models.Publication, error) {
	builder := strings.Builder{}
	var args []interface{}
	builder.WriteString(`SELECT ` + publicationColumns + ` FROM publications`)
	if filter.Domain != "" {
		args = append(args, filter.Domain)
		builder.WriteString(" WHERE domain = $1")
	}
	builder.WriteString(" ORDER BY published_at DESC, id ASC")
	limit, offset := clampPage(filter.Limit, filter.Offset, 20, 100)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var pubs []models.Publication
	if err := r.db.SelectContext(ctx, &pubs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	return pubs, nil
}
