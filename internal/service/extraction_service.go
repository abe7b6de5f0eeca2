package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailextract/internal/extraction"
	"github.com/xxxsen/mailextract/internal/model"
	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
	"github.com/xxxsen/mailextract/internal/pkg/timeutil"
	"github.com/xxxsen/mailextract/internal/poll"
	"github.com/xxxsen/mailextract/internal/repo"
	"github.com/xxxsen/mailextract/internal/source"
)

type ExtractionOptions struct {
	Project       string
	FileType      string
	BatchSize     int
	PollInterval  time.Duration
	RetryInterval time.Duration
	MaxRetries    int
	// PollTimeout bounds a whole status check; zero means no bound.
	PollTimeout  time.Duration
	TrimHeader   bool
	HeaderMarker string
	// Sleep replaces the poll wait in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// BatchUploadError reports the 1-based chunk that failed. Assets from
// earlier chunks stay uploaded.
type BatchUploadError struct {
	Chunk    int
	Uploaded []string
	Err      error
}

func (e *BatchUploadError) Error() string {
	return fmt.Sprintf("failed to upload batch %d: %v", e.Chunk, e.Err)
}

func (e *BatchUploadError) Unwrap() error {
	return e.Err
}

type UploadResult struct {
	Message   string   `json:"message"`
	RequestID string   `json:"request_id"`
	AssetIDs  []string `json:"asset_ids"`
	Batches   int      `json:"batches"`
}

type MergeReport struct {
	TransformID string   `json:"transform_id"`
	Updated     []string `json:"updated"`
	Skipped     []string `json:"skipped"`
	Invalid     []string `json:"invalid"`
}

type ExtractionService struct {
	api       ExtractionAPI
	emails    EmailStore
	docs      source.Source
	pending   *PendingStore
	validator *extraction.ResultValidator
	params    extraction.TransformParams
	opts      ExtractionOptions
}

func NewExtractionService(api ExtractionAPI, emails EmailStore, docs source.Source, pending *PendingStore, validator *extraction.ResultValidator, opts ExtractionOptions) *ExtractionService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 2
	}
	if opts.FileType == "" {
		opts.FileType = "txt"
	}
	return &ExtractionService{
		api:       api,
		emails:    emails,
		docs:      docs,
		pending:   pending,
		validator: validator,
		params:    extraction.EmailTransformParams(),
		opts:      opts,
	}
}

func (s *ExtractionService) project(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return s.opts.Project
}

// UploadAssets uploads every document of the source.
func (s *ExtractionService) UploadAssets(ctx context.Context, project string) (*UploadResult, error) {
	files, err := source.ReadAll(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	docs := make([]extraction.Document, 0, len(files))
	for _, f := range files {
		docs = append(docs, extraction.Document{Name: f.Name, Content: f.Content})
	}
	return s.UploadDocuments(ctx, project, docs)
}

// UploadDocuments uploads docs in chunks of the configured batch size and
// stops at the first failing chunk.
func (s *ExtractionService) UploadDocuments(ctx context.Context, project string, docs []extraction.Document) (*UploadResult, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents to upload: %w", appErr.ErrInvalid)
	}
	project = s.project(project)
	logger := logutil.GetLogger(ctx).With(zap.String("project", project), zap.Int("documents", len(docs)))

	assetIDs := make([]string, 0, len(docs))
	batches := 0
	for start := 0; start < len(docs); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		chunk := docs[start:end]
		batches++
		assets, err := s.api.UploadAssets(ctx, project, s.opts.FileType, chunk)
		if err != nil {
			logger.Error("upload batch failed", zap.Int("batch", batches), zap.Error(err))
			return nil, &BatchUploadError{Chunk: batches, Uploaded: assetIDs, Err: err}
		}
		for _, a := range assets {
			assetIDs = append(assetIDs, a.AssetID)
		}
		s.recordUploaded(ctx, chunk, assets)
		logger.Info("upload batch done", zap.Int("batch", batches), zap.Int("assets", len(assets)))
	}

	requestID := newRequestID()
	s.pending.PutUpload(&PendingUpload{
		RequestID: requestID,
		Project:   project,
		AssetIDs:  assetIDs,
		Ctime:     timeutil.NowUnix(),
	})
	return &UploadResult{
		Message:   "All batches uploaded successfully.",
		RequestID: requestID,
		AssetIDs:  assetIDs,
		Batches:   batches,
	}, nil
}

// recordUploaded creates or refreshes one record per uploaded document so
// later results have something to land on.
func (s *ExtractionService) recordUploaded(ctx context.Context, chunk []extraction.Document, assets []extraction.UploadedAsset) {
	byExtID := make(map[string]string, len(assets))
	for _, a := range assets {
		if a.ExtFileID != "" {
			byExtID[a.ExtFileID] = a.AssetID
		}
	}
	now := timeutil.NowUnix()
	for _, doc := range chunk {
		full := string(doc.Content)
		rec := &model.EmailExtraction{
			ExtFileID:    doc.ExtID(),
			ExtFileName:  doc.Name,
			EmailContent: EmailPayload(full, s.opts.TrimHeader, s.opts.HeaderMarker),
			FullEmail:    full,
			AssetID:      byExtID[doc.ExtID()],
			Ctime:        now,
			Mtime:        now,
		}
		if err := s.emails.UpsertUploaded(ctx, rec); err != nil {
			logutil.GetLogger(ctx).Warn("record uploaded document failed",
				zap.String("ext_file_id", rec.ExtFileID), zap.Error(err))
		}
	}
}

func (s *ExtractionService) pollConfig() poll.Config {
	return poll.Config{
		Interval:      s.opts.PollInterval,
		RetryInterval: s.opts.RetryInterval,
		MaxRetries:    s.opts.MaxRetries,
		Retryable:     extraction.IsGatewayTimeout,
		Sleep:         s.opts.Sleep,
	}
}

func (s *ExtractionService) withPollTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.PollTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.PollTimeout)
}

// CheckUploadStatus blocks until every asset of the request (or the given
// asset ids) is processed or not_processed.
func (s *ExtractionService) CheckUploadStatus(ctx context.Context, requestID string, assetIDs []string) (map[string]extraction.Status, error) {
	ids := assetIDs
	if len(ids) == 0 && requestID != "" {
		upload, ok := s.pending.Upload(requestID)
		if !ok {
			return nil, fmt.Errorf("unknown or expired request %s: %w", requestID, appErr.ErrNoIDs)
		}
		ids = upload.AssetIDs
	}
	ctx, cancel := s.withPollTimeout(ctx)
	defer cancel()
	statuses, err := poll.New(s.pollConfig(), s.api.AssetStatus, extraction.IsAssetTerminal).Run(ctx, ids)
	if err != nil {
		return nil, err
	}
	if requestID != "" {
		s.pending.EvictUpload(requestID)
	}
	return statuses, nil
}

func (s *ExtractionService) InitiateTransformation(ctx context.Context, project string) (*TransformJob, error) {
	project = s.project(project)
	id, err := s.api.InitiateTransform(ctx, project, s.params)
	if err != nil {
		return nil, fmt.Errorf("initiate transformation: %w", err)
	}
	job := &TransformJob{ID: id, Project: project, Status: extraction.TransformInitiated, Mtime: timeutil.NowUnix()}
	s.pending.PutTransform(job)
	logutil.GetLogger(ctx).Info("transformation initiated", zap.String("project", project), zap.String("transform_id", id))
	return job, nil
}

func (s *ExtractionService) resolveTransformID(transformID, project string) (string, error) {
	if transformID = strings.TrimSpace(transformID); transformID != "" {
		return transformID, nil
	}
	if id, ok := s.pending.LatestTransform(s.project(project)); ok {
		return id, nil
	}
	return "", fmt.Errorf("no transformation id available: %w", appErr.ErrNoIDs)
}

// CheckTransformationStatus blocks until the job is completed or failed.
func (s *ExtractionService) CheckTransformationStatus(ctx context.Context, transformID, project string) (*TransformJob, error) {
	id, err := s.resolveTransformID(transformID, project)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withPollTimeout(ctx)
	defer cancel()
	statuses, err := poll.New(s.pollConfig(), s.api.TransformStatus, extraction.IsTransformTerminal).Run(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	st := statuses[id]
	s.pending.UpdateTransform(id, st.Status, st.StatusText)
	return &TransformJob{
		ID:         id,
		Project:    s.project(project),
		Status:     st.Status,
		StatusText: st.StatusText,
		Mtime:      timeutil.NowUnix(),
	}, nil
}

// FetchAndMergeResults writes a finished job's results onto existing
// records. Results without a matching record are skipped, never created.
func (s *ExtractionService) FetchAndMergeResults(ctx context.Context, transformID, project string) (*MergeReport, error) {
	id, err := s.resolveTransformID(transformID, project)
	if err != nil {
		return nil, err
	}
	results, raws, err := s.api.TransformResults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch transformation results: %w", err)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("transform_id", id))
	report := &MergeReport{TransformID: id, Updated: []string{}, Skipped: []string{}, Invalid: []string{}}
	now := timeutil.NowUnix()
	for i, r := range results {
		label := r.ExtFileID
		if label == "" {
			label = r.AssetID
		}
		if s.validator != nil {
			if err := s.validator.Validate(raws[i]); err != nil {
				logger.Warn("invalid transformation result", zap.String("asset_id", r.AssetID), zap.Error(err))
				report.Invalid = append(report.Invalid, label)
				continue
			}
		}
		if r.ExtFileID == "" {
			report.Invalid = append(report.Invalid, label)
			continue
		}
		ok, err := s.emails.ApplyExtraction(ctx, r.ExtFileID, resultFields(r), now)
		if err != nil {
			return nil, fmt.Errorf("apply result for %s: %w", r.ExtFileID, err)
		}
		if !ok {
			logger.Warn("no record for transformation result, skipped", zap.String("ext_file_id", r.ExtFileID))
			report.Skipped = append(report.Skipped, r.ExtFileID)
			continue
		}
		report.Updated = append(report.Updated, r.ExtFileID)
	}
	logger.Info("transformation results merged",
		zap.Int("updated", len(report.Updated)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("invalid", len(report.Invalid)))
	return report, nil
}

func resultFields(r extraction.Result) *model.ExtractionFields {
	fields := &model.ExtractionFields{
		AssetID:         r.AssetID,
		ResultID:        r.ResultID,
		EmailFrom:       r.EmailFrom,
		EmailTo:         r.EmailTo,
		PeopleMentioned: r.PeopleMentioned,
		OneLineSummary:  r.OneLineSummary,
		Genre:           r.Genre,
		PrimaryTopics:   r.PrimaryTopics,
		EmotionalTone:   r.EmotionalTone,
		Date:            r.Date,
	}
	if v, ok := repo.ParseYesNo(r.ComplianceRisk); ok {
		fields.ComplianceRisk = &v
	}
	return fields
}
