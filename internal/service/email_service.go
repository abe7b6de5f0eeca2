package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/mailextract/internal/model"
	appErr "github.com/xxxsen/mailextract/internal/pkg/errors"
	"github.com/xxxsen/mailextract/internal/pkg/timeutil"
)

type EmailService struct {
	emails    EmailStore
	dimension int
}

func NewEmailService(emails EmailStore, dimension int) *EmailService {
	return &EmailService{emails: emails, dimension: dimension}
}

func (s *EmailService) Save(ctx context.Context, rec *model.EmailExtraction) (*model.EmailExtraction, error) {
	rec.ExtFileID = strings.TrimSpace(rec.ExtFileID)
	if rec.ExtFileID == "" {
		return nil, fmt.Errorf("ext_file_id is required: %w", appErr.ErrInvalid)
	}
	if strings.TrimSpace(rec.ExtFileName) == "" {
		return nil, fmt.Errorf("ext_file_name is required: %w", appErr.ErrInvalid)
	}
	if len(rec.Embedding) > 0 && len(rec.Embedding) != s.dimension {
		return nil, fmt.Errorf("embedding must have %d dimensions: %w", s.dimension, appErr.ErrInvalid)
	}
	now := timeutil.NowUnix()
	rec.ID = 0
	rec.Ctime = now
	rec.Mtime = now
	if err := s.emails.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *EmailService) List(ctx context.Context, limit, offset int) ([]model.EmailExtraction, int64, error) {
	items, err := s.emails.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.emails.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Embedding = nil
	}
	return items, total, nil
}

func (s *EmailService) Get(ctx context.Context, extFileID string) (*model.EmailExtraction, error) {
	return s.emails.GetByExtFileID(ctx, extFileID)
}
