package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/mailextract/internal/model"
	"github.com/xxxsen/mailextract/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
)

const emailTable = "email_extractions"

const emailColumns = "id, ext_file_id, ext_file_name, email_content, full_email, embedding, embedding_model, asset_id, result_id, " +
	"email_from, email_to, people_mentioned, compliance_risk, one_line_summary, genre, primary_topics, " +
	"emotional_tone, date, ctime, mtime"

var emailFields = []string{
	"id", "ext_file_id", "ext_file_name", "email_content", "full_email", "embedding", "embedding_model", "asset_id", "result_id",
	"email_from", "email_to", "people_mentioned", "compliance_risk", "one_line_summary", "genre", "primary_topics",
	"emotional_tone", "date", "ctime", "mtime",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type EmailRepo struct {
	db *sql.DB
}

func NewEmailRepo(db *sql.DB) *EmailRepo {
	return &EmailRepo{db: db}
}

func textArray(v []string) pq.StringArray {
	if v == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(v)
}

func vectorValue(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func scanEmail(row rowScanner, extra ...interface{}) (*model.EmailExtraction, error) {
	var (
		item      model.EmailExtraction
		embedding *pgvector.Vector
		emailTo   pq.StringArray
		people    pq.StringArray
		risk      sql.NullBool
	)
	dest := []interface{}{
		&item.ID, &item.ExtFileID, &item.ExtFileName, &item.EmailContent, &item.FullEmail, &embedding,
		&item.EmbeddingModel, &item.AssetID, &item.ResultID, &item.EmailFrom, &emailTo, &people, &risk, &item.OneLineSummary,
		&item.Genre, &item.PrimaryTopics, &item.EmotionalTone, &item.Date, &item.Ctime, &item.Mtime,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if embedding != nil {
		item.Embedding = embedding.Slice()
	}
	item.EmailTo = []string(emailTo)
	item.PeopleMentioned = []string(people)
	if risk.Valid {
		v := risk.Bool
		item.ComplianceRisk = &v
	}
	return &item, nil
}

func (r *EmailRepo) Create(ctx context.Context, rec *model.EmailExtraction) error {
	data := map[string]interface{}{
		"ext_file_id":      rec.ExtFileID,
		"ext_file_name":    rec.ExtFileName,
		"email_content":    rec.EmailContent,
		"full_email":       rec.FullEmail,
		"embedding":        vectorValue(rec.Embedding),
		"embedding_model":  rec.EmbeddingModel,
		"asset_id":         rec.AssetID,
		"result_id":        rec.ResultID,
		"email_from":       rec.EmailFrom,
		"email_to":         textArray(rec.EmailTo),
		"people_mentioned": textArray(rec.PeopleMentioned),
		"compliance_risk":  rec.ComplianceRisk,
		"one_line_summary": rec.OneLineSummary,
		"genre":            rec.Genre,
		"primary_topics":   rec.PrimaryTopics,
		"emotional_tone":   rec.EmotionalTone,
		"date":             rec.Date,
		"ctime":            rec.Ctime,
		"mtime":            rec.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert(emailTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr+" RETURNING id", args)
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&rec.ID); err != nil {
		if dbutil.IsConflict(err) {
			return fmt.Errorf("ext_file_id %s: %w", rec.ExtFileID, appErr.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *EmailRepo) GetByExtFileID(ctx context.Context, extFileID string) (*model.EmailExtraction, error) {
	where := map[string]interface{}{"ext_file_id": extFileID}
	sqlStr, args, err := builder.BuildSelect(emailTable, where, emailFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	item, err := scanEmail(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// List returns records ordered by id. A non-positive limit returns everything.
func (r *EmailRepo) List(ctx context.Context, limit, offset int) ([]model.EmailExtraction, error) {
	where := map[string]interface{}{"_orderby": "id asc"}
	if limit > 0 {
		if offset < 0 {
			offset = 0
		}
		where["_limit"] = []uint{uint(offset), uint(limit)}
	}
	sqlStr, args, err := builder.BuildSelect(emailTable, where, emailFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.query(ctx, sqlStr, args...)
}

func (r *EmailRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM email_extractions").Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListUnembedded returns records that need a vector from modelName: those
// without one first, then those embedded by another model. An empty
// modelName only lists records without a vector.
func (r *EmailRepo) ListUnembedded(ctx context.Context, modelName string, limit int) ([]model.EmailExtraction, error) {
	query := `SELECT ` + emailColumns + ` FROM email_extractions
		WHERE embedding IS NULL OR ($1::text <> '' AND embedding_model <> $1::text)
		ORDER BY (embedding IS NULL) DESC, id ASC`
	args := []interface{}{modelName}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

// EmbeddedExtFileIDs lists the records that already carry a vector from
// modelName. An empty modelName accepts any model.
func (r *EmailRepo) EmbeddedExtFileIDs(ctx context.Context, modelName string) (map[string]struct{}, error) {
	const query = `SELECT ext_file_id FROM email_extractions
		WHERE embedding IS NOT NULL AND ($1::text = '' OR embedding_model = $1::text)`
	rows, err := r.db.QueryContext(ctx, query, modelName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// UpsertUploaded records a document right after upload. Extraction fields
// and an existing vector are left alone.
func (r *EmailRepo) UpsertUploaded(ctx context.Context, rec *model.EmailExtraction) error {
	const query = `
		INSERT INTO email_extractions (ext_file_id, ext_file_name, email_content, full_email, asset_id, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (ext_file_id) DO UPDATE SET
			ext_file_name = EXCLUDED.ext_file_name,
			email_content = EXCLUDED.email_content,
			full_email = EXCLUDED.full_email,
			asset_id = CASE WHEN EXCLUDED.asset_id = '' THEN email_extractions.asset_id ELSE EXCLUDED.asset_id END,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ExtFileID,
		rec.ExtFileName,
		rec.EmailContent,
		rec.FullEmail,
		rec.AssetID,
		rec.Mtime,
	)
	return err
}

// UpsertEmbedding stores a vector and the model that produced it, creating
// the record when it is missing.
func (r *EmailRepo) UpsertEmbedding(ctx context.Context, rec *model.EmailExtraction) error {
	const query = `
		INSERT INTO email_extractions (ext_file_id, ext_file_name, email_content, full_email, embedding, embedding_model, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (ext_file_id) DO UPDATE SET
			email_content = EXCLUDED.email_content,
			full_email = EXCLUDED.full_email,
			embedding = EXCLUDED.embedding,
			embedding_model = EXCLUDED.embedding_model,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ExtFileID,
		rec.ExtFileName,
		rec.EmailContent,
		rec.FullEmail,
		pgvector.NewVector(rec.Embedding),
		rec.EmbeddingModel,
		rec.Mtime,
	)
	return err
}

// ApplyExtraction writes transformation output onto an existing record in a
// single statement. It reports false when no record matches.
func (r *EmailRepo) ApplyExtraction(ctx context.Context, extFileID string, fields *model.ExtractionFields, mtime int64) (bool, error) {
	const query = `
		UPDATE email_extractions SET
			asset_id = CASE WHEN $2::text = '' THEN asset_id ELSE $2::text END,
			result_id = $3,
			email_from = $4,
			email_to = $5,
			people_mentioned = $6,
			compliance_risk = $7,
			one_line_summary = $8,
			genre = $9,
			primary_topics = $10,
			emotional_tone = $11,
			date = $12,
			mtime = $13
		WHERE ext_file_id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		extFileID,
		fields.AssetID,
		fields.ResultID,
		fields.EmailFrom,
		textArray(fields.EmailTo),
		textArray(fields.PeopleMentioned),
		fields.ComplianceRisk,
		fields.OneLineSummary,
		fields.Genre,
		fields.PrimaryTopics,
		fields.EmotionalTone,
		fields.Date,
		mtime,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *EmailRepo) SearchSimilar(ctx context.Context, q SimilarityQuery) ([]model.SimilarEmail, error) {
	sqlStr, args, err := BuildSimilarityQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.SimilarEmail, 0, q.Limit)
	for rows.Next() {
		var distance sql.NullFloat64
		rec, err := scanEmail(rows, &distance)
		if err != nil {
			return nil, err
		}
		hit := model.SimilarEmail{EmailExtraction: *rec}
		if distance.Valid {
			d := distance.Float64
			hit.Score = &d
			hit.VectorRanked = true
		}
		items = append(items, hit)
	}
	return items, rows.Err()
}

// EmbeddingColumn reports the declared type of the embedding column. The
// dimension comes from the vector type modifier; -1 means unconstrained.
func (r *EmailRepo) EmbeddingColumn(ctx context.Context) (*model.EmbeddingColumn, error) {
	const query = `
		SELECT c.data_type, c.udt_name, a.atttypmod
		FROM information_schema.columns c
		JOIN pg_attribute a ON a.attrelid = 'email_extractions'::regclass AND a.attname = c.column_name
		WHERE c.table_name = 'email_extractions' AND c.column_name = 'embedding'
	`
	var col model.EmbeddingColumn
	if err := r.db.QueryRowContext(ctx, query).Scan(&col.DataType, &col.UDTName, &col.Dimension); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &col, nil
}

func (r *EmailRepo) query(ctx context.Context, sqlStr string, args ...interface{}) ([]model.EmailExtraction, error) {
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.EmailExtraction, 0)
	for rows.Next() {
		item, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
