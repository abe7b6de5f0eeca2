package model

// EmailExtraction is one source email plus everything extracted from it.
type EmailExtraction struct {
	ID              int64     `json:"id"`
	ExtFileID       string    `json:"ext_file_id"`
	ExtFileName     string    `json:"ext_file_name"`
	EmailContent    string    `json:"email_content"`
	FullEmail       string    `json:"full_email"`
	Embedding       []float32 `json:"embedding,omitempty"`
	EmbeddingModel  string    `json:"embedding_model"`
	AssetID         string    `json:"asset_id"`
	ResultID        string    `json:"result_id"`
	EmailFrom       string    `json:"email_from"`
	EmailTo         []string  `json:"email_to"`
	PeopleMentioned []string  `json:"people_mentioned"`
	ComplianceRisk  *bool     `json:"compliance_risk"`
	OneLineSummary  string    `json:"one_line_summary"`
	Genre           string    `json:"genre"`
	PrimaryTopics   string    `json:"primary_topics"`
	EmotionalTone   string    `json:"emotional_tone"`
	Date            string    `json:"date"`
	Ctime           int64     `json:"ctime"`
	Mtime           int64     `json:"mtime"`
}

// ExtractionFields holds the values a transformation result writes back.
type ExtractionFields struct {
	AssetID         string
	ResultID        string
	EmailFrom       string
	EmailTo         []string
	PeopleMentioned []string
	ComplianceRisk  *bool
	OneLineSummary  string
	Genre           string
	PrimaryTopics   string
	EmotionalTone   string
	Date            string
}

// SimilarEmail is a search hit. Score is nil and VectorRanked false for
// rows that have no embedding.
type SimilarEmail struct {
	EmailExtraction
	Score        *float64 `json:"score"`
	VectorRanked bool     `json:"vector_ranked"`
}

// EmbeddingColumn describes the embedding column as the database sees it.
type EmbeddingColumn struct {
	DataType  string `json:"data_type"`
	UDTName   string `json:"udt_name"`
	Dimension int    `json:"dimension"`
}
