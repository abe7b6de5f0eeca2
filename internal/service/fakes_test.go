package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/xxxsen/mailextract/internal/extraction"
	"github.com/xxxsen/mailextract/internal/model"
	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
	"github.com/xxxsen/mailextract/internal/repo"
)

type memEmails struct {
	mu        sync.Mutex
	nextID    int64
	byExtID   map[string]*model.EmailExtraction
	lastQuery repo.SimilarityQuery
	hits      []model.SimilarEmail
}

func newMemEmails() *memEmails {
	return &memEmails{byExtID: map[string]*model.EmailExtraction{}}
}

func (m *memEmails) get(extID string) *model.EmailExtraction {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byExtID[extID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (m *memEmails) Create(ctx context.Context, rec *model.EmailExtraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byExtID[rec.ExtFileID]; ok {
		return appErr.ErrConflict
	}
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.byExtID[rec.ExtFileID] = &cp
	return nil
}

func (m *memEmails) GetByExtFileID(ctx context.Context, extFileID string) (*model.EmailExtraction, error) {
	rec := m.get(extFileID)
	if rec == nil {
		return nil, appErr.ErrNotFound
	}
	return rec, nil
}

func (m *memEmails) sorted() []model.EmailExtraction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EmailExtraction, 0, len(m.byExtID))
	for _, rec := range m.byExtID {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memEmails) List(ctx context.Context, limit, offset int) ([]model.EmailExtraction, error) {
	all := m.sorted()
	if limit <= 0 {
		return all, nil
	}
	if offset > len(all) {
		return []model.EmailExtraction{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *memEmails) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byExtID)), nil
}

func (m *memEmails) ListUnembedded(ctx context.Context, modelName string, limit int) ([]model.EmailExtraction, error) {
	var out, stale []model.EmailExtraction
	for _, rec := range m.sorted() {
		switch {
		case len(rec.Embedding) == 0:
			out = append(out, rec)
		case modelName != "" && rec.EmbeddingModel != modelName:
			stale = append(stale, rec)
		}
	}
	out = append(out, stale...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memEmails) EmbeddedExtFileIDs(ctx context.Context, modelName string) (map[string]struct{}, error) {
	ids := map[string]struct{}{}
	for _, rec := range m.sorted() {
		if len(rec.Embedding) > 0 && (modelName == "" || rec.EmbeddingModel == modelName) {
			ids[rec.ExtFileID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *memEmails) upsert(rec *model.EmailExtraction, apply func(existing *model.EmailExtraction)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byExtID[rec.ExtFileID]
	if !ok {
		m.nextID++
		cp := *rec
		cp.ID = m.nextID
		m.byExtID[rec.ExtFileID] = &cp
		return
	}
	apply(existing)
}

func (m *memEmails) UpsertUploaded(ctx context.Context, rec *model.EmailExtraction) error {
	m.upsert(rec, func(e *model.EmailExtraction) {
		e.ExtFileName = rec.ExtFileName
		e.EmailContent = rec.EmailContent
		e.FullEmail = rec.FullEmail
		if rec.AssetID != "" {
			e.AssetID = rec.AssetID
		}
		e.Mtime = rec.Mtime
	})
	return nil
}

func (m *memEmails) UpsertEmbedding(ctx context.Context, rec *model.EmailExtraction) error {
	m.upsert(rec, func(e *model.EmailExtraction) {
		e.EmailContent = rec.EmailContent
		e.FullEmail = rec.FullEmail
		e.Embedding = rec.Embedding
		e.EmbeddingModel = rec.EmbeddingModel
		e.Mtime = rec.Mtime
	})
	return nil
}

func (m *memEmails) ApplyExtraction(ctx context.Context, extFileID string, f *model.ExtractionFields, mtime int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byExtID[extFileID]
	if !ok {
		return false, nil
	}
	if f.AssetID != "" {
		e.AssetID = f.AssetID
	}
	e.ResultID = f.ResultID
	e.EmailFrom = f.EmailFrom
	e.EmailTo = f.EmailTo
	e.PeopleMentioned = f.PeopleMentioned
	e.ComplianceRisk = f.ComplianceRisk
	e.OneLineSummary = f.OneLineSummary
	e.Genre = f.Genre
	e.PrimaryTopics = f.PrimaryTopics
	e.EmotionalTone = f.EmotionalTone
	e.Date = f.Date
	e.Mtime = mtime
	return true, nil
}

func (m *memEmails) SearchSimilar(ctx context.Context, q repo.SimilarityQuery) ([]model.SimilarEmail, error) {
	m.lastQuery = q
	return m.hits, nil
}

func (m *memEmails) EmbeddingColumn(ctx context.Context) (*model.EmbeddingColumn, error) {
	return &model.EmbeddingColumn{DataType: "USER-DEFINED", UDTName: "vector", Dimension: 256}, nil
}

// fakeAPI replays scripted answers for the extraction provider.
type fakeAPI struct {
	uploadCalls  [][]extraction.Document
	failOnUpload int
	assetSteps   []string
	assetCalls   int
	transformID  string
	statusSteps  []interface{}
	statusCalls  int
	results      map[string][]string
}

func (f *fakeAPI) UploadAssets(ctx context.Context, project, fileType string, docs []extraction.Document) ([]extraction.UploadedAsset, error) {
	f.uploadCalls = append(f.uploadCalls, docs)
	if f.failOnUpload == len(f.uploadCalls) {
		return nil, fmt.Errorf("upload rejected: %w", appErr.ErrUpstream)
	}
	out := make([]extraction.UploadedAsset, 0, len(docs))
	for _, d := range docs {
		out = append(out, extraction.UploadedAsset{AssetID: "asset_" + d.ExtID(), ExtFileID: d.ExtID()})
	}
	return out, nil
}

func (f *fakeAPI) AssetStatus(ctx context.Context, ids []string) (map[string]extraction.Status, error) {
	step := f.assetSteps[f.assetCalls]
	f.assetCalls++
	out := make(map[string]extraction.Status, len(ids))
	for _, id := range ids {
		out[id] = extraction.Status{Status: step}
	}
	return out, nil
}

func (f *fakeAPI) InitiateTransform(ctx context.Context, project string, params extraction.TransformParams) (string, error) {
	return f.transformID, nil
}

func (f *fakeAPI) TransformStatus(ctx context.Context, ids []string) (map[string]extraction.Status, error) {
	step := f.statusSteps[f.statusCalls]
	f.statusCalls++
	if err, ok := step.(error); ok {
		return nil, err
	}
	return map[string]extraction.Status{ids[0]: {Status: step.(string)}}, nil
}

func (f *fakeAPI) TransformResults(ctx context.Context, transformID string) ([]extraction.Result, []json.RawMessage, error) {
	var results []extraction.Result
	var raws []json.RawMessage
	assets := make([]string, 0, len(f.results))
	for a := range f.results {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	for _, asset := range assets {
		for _, doc := range f.results[asset] {
			var r extraction.Result
			_ = json.Unmarshal([]byte(doc), &r)
			r.AssetID = asset
			results = append(results, r)
			raws = append(raws, json.RawMessage(doc))
		}
	}
	return results, raws, nil
}

// memSource is an in-memory document source.
type memSource struct {
	files map[string]string
}

func (m *memSource) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memSource) Read(ctx context.Context, name string) ([]byte, error) {
	content, ok := m.files[name]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return []byte(content), nil
}

func (m *memSource) Save(ctx context.Context, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.files[name] = string(data)
	return nil
}
