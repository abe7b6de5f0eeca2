package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/xxxsen/mailextract/internal/model"
)

const exportSheet = "Emails"

var exportHeaders = []string{
	"Ext File ID",
	"File Name",
	"Asset ID",
	"Result ID",
	"From",
	"To",
	"People Mentioned",
	"Compliance Risk",
	"Summary",
	"Genre",
	"Primary Topics",
	"Emotional Tone",
	"Date",
	"Embedded",
}

type ExportService struct {
	emails EmailStore
}

func NewExportService(emails EmailStore) *ExportService {
	return &ExportService{emails: emails}
}

// ExportXLSX renders every record as one spreadsheet row.
func (s *ExportService) ExportXLSX(ctx context.Context) ([]byte, error) {
	recs, err := s.emails.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close()
	if index, _ := f.GetSheetIndex(exportSheet); index == -1 {
		if _, err := f.NewSheet(exportSheet); err != nil {
			return nil, err
		}
	}
	index, _ := f.GetSheetIndex(exportSheet)
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, err
		}
	}
	for r, rec := range recs {
		for c, v := range exportRow(rec) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}
	_ = f.SetColWidth(exportSheet, "A", "D", 18)
	_ = f.SetColWidth(exportSheet, "E", "G", 32)
	_ = f.SetColWidth(exportSheet, "I", "I", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func exportRow(rec model.EmailExtraction) []interface{} {
	risk := ""
	if rec.ComplianceRisk != nil {
		risk = "No"
		if *rec.ComplianceRisk {
			risk = "Yes"
		}
	}
	embedded := "No"
	if len(rec.Embedding) > 0 {
		embedded = "Yes"
	}
	return []interface{}{
		rec.ExtFileID,
		rec.ExtFileName,
		rec.AssetID,
		rec.ResultID,
		rec.EmailFrom,
		strings.Join(rec.EmailTo, ", "),
		strings.Join(rec.PeopleMentioned, ", "),
		risk,
		rec.OneLineSummary,
		rec.Genre,
		rec.PrimaryTopics,
		rec.EmotionalTone,
		rec.Date,
		embedded,
	}
}
