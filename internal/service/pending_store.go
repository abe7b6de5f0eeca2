package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xxxsen/mailextract/internal/pkg/timeutil"
)

// PendingUpload correlates an upload request with the assets it created.
type PendingUpload struct {
	RequestID string   `json:"request_id"`
	Project   string   `json:"project"`
	AssetIDs  []string `json:"asset_ids"`
	Ctime     int64    `json:"ctime"`
}

// TransformJob is the last known state of a transformation.
type TransformJob struct {
	ID         string `json:"transform_id"`
	Project    string `json:"project"`
	Status     string `json:"status"`
	StatusText string `json:"status_text,omitempty"`
	Mtime      int64  `json:"mtime"`
}

// PendingStore keeps in-flight uploads and transformations. Entries expire
// after ttl; uploads are dropped as soon as their status check reaches a
// terminal state.
type PendingStore struct {
	uploads    *expirable.LRU[string, *PendingUpload]
	transforms *expirable.LRU[string, *TransformJob]
	latest     *expirable.LRU[string, string]
}

func NewPendingStore(size int, ttl time.Duration) *PendingStore {
	return &PendingStore{
		uploads:    expirable.NewLRU[string, *PendingUpload](size, nil, ttl),
		transforms: expirable.NewLRU[string, *TransformJob](size, nil, ttl),
		latest:     expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (p *PendingStore) PutUpload(u *PendingUpload) {
	p.uploads.Add(u.RequestID, u)
}

func (p *PendingStore) Upload(requestID string) (*PendingUpload, bool) {
	return p.uploads.Get(requestID)
}

func (p *PendingStore) EvictUpload(requestID string) {
	p.uploads.Remove(requestID)
}

// PutTransform records a job and makes it the latest for its project.
func (p *PendingStore) PutTransform(job *TransformJob) {
	p.transforms.Add(job.ID, job)
	p.latest.Add(job.Project, job.ID)
}

func (p *PendingStore) Transform(id string) (*TransformJob, bool) {
	return p.transforms.Get(id)
}

func (p *PendingStore) UpdateTransform(id, status, statusText string) {
	job, ok := p.transforms.Peek(id)
	if !ok {
		return
	}
	updated := *job
	updated.Status = status
	updated.StatusText = statusText
	updated.Mtime = timeutil.NowUnix()
	p.transforms.Add(id, &updated)
}

// LatestTransform returns the most recently initiated job of a project that
// has not expired yet. A pointer to an evicted job is dropped.
func (p *PendingStore) LatestTransform(project string) (string, bool) {
	id, ok := p.latest.Get(project)
	if !ok {
		return "", false
	}
	if !p.transforms.Contains(id) {
		p.latest.Remove(project)
		return "", false
	}
	return id, true
}
