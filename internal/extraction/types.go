package extraction

import (
	"path/filepath"
	"strings"
)

const (
	AssetProcessed    = "processed"
	AssetNotProcessed = "not_processed"

	TransformInitiated  = "initiated"
	TransformProcessing = "processing"
	TransformCompleted  = "completed"
	TransformFailed     = "failed"
)

// Document is one email file handed to the uploader.
type Document struct {
	Name    string
	Content []byte
}

// ExtID derives the stable external identifier from the file name.
func (d Document) ExtID() string {
	return ExtIDFromName(d.Name)
}

func ExtIDFromName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type Status struct {
	Status     string `json:"status"`
	StatusText string `json:"statusText,omitempty"`
}

func IsAssetTerminal(s Status) bool {
	return s.Status == AssetProcessed || s.Status == AssetNotProcessed
}

func IsTransformTerminal(s Status) bool {
	return s.Status == TransformCompleted || s.Status == TransformFailed
}

// Result is one per-document output of a transformation.
type Result struct {
	AssetID         string   `json:"-"`
	ResultID        string   `json:"result_id"`
	ExtFileID       string   `json:"ext_file_id"`
	ExtFileName     string   `json:"ext_file_name"`
	EmailFrom       string   `json:"email_from"`
	EmailTo         []string `json:"email_to"`
	PeopleMentioned []string `json:"people_mentioned"`
	ComplianceRisk  string   `json:"compliance_risk"`
	OneLineSummary  string   `json:"one_line_summary"`
	Genre           string   `json:"genre"`
	PrimaryTopics   string   `json:"primary_topics"`
	EmotionalTone   string   `json:"emotional_tone"`
	Date            string   `json:"date"`
}

// UploadedAsset is one entry of an upload response, keyed by asset id.
type UploadedAsset struct {
	AssetID   string
	ExtFileID string
}
