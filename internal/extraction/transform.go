package extraction

const (
	TransformExtraction     = "extraction"
	TransformClassification = "classification"
	TransformGeneration     = "generation"
)

type Operation struct {
	ColumnName      string            `json:"column_name"`
	ColumnType      string            `json:"column_type"`
	OutputValues    map[string]string `json:"output_values,omitempty"`
	TransformType   string            `json:"transform_type"`
	TaskDescription string            `json:"task_description"`
}

type TransformParams struct {
	Mode       string      `json:"mode"`
	Model      string      `json:"model"`
	Operations []Operation `json:"operations"`
}

// EmailTransformParams is the column contract sent with every email
// transformation. Labels and their definitions are consumed by the provider
// as written.
func EmailTransformParams() TransformParams {
	return TransformParams{
		Mode:  "document",
		Model: "trellis-premium",
		Operations: []Operation{
			{
				ColumnName:      "email_from",
				ColumnType:      "text",
				TransformType:   TransformExtraction,
				TaskDescription: "extract who sent the email. This should be in From",
			},
			{
				ColumnName:      "email_to",
				ColumnType:      "text[]",
				TransformType:   TransformExtraction,
				TaskDescription: "Extract a list of emails in the To section",
			},
			{
				ColumnName:      "people_mentioned",
				ColumnType:      "text[]",
				TransformType:   TransformExtraction,
				TaskDescription: "Extract a list of people mentioned in the email.",
			},
			{
				ColumnName: "compliance_risk",
				ColumnType: "text",
				OutputValues: map[string]string{
					"No":  "the email does not potential compliance violation",
					"Yes": "the email contains potential compliance violation",
				},
				TransformType:   TransformClassification,
				TaskDescription: "Classify whether the email contains information that's a potential compliance violation",
			},
			{
				ColumnName:      "one_line_summary",
				ColumnType:      "text",
				TransformType:   TransformGeneration,
				TaskDescription: "Summarize the email in one line",
			},
			{
				ColumnName: "genre",
				ColumnType: "text",
				OutputValues: map[string]string{
					"employment":            "topics related to job seeking, hiring, recommendations, etc",
					"empty_message":         "no information in the text",
					"document_review":       "collaborating on document, editing",
					"purely_personal":       "personal chat unrelated to work",
					"company_business":      "related to company business",
					"logistics_arrangement": "meeting scheduling, technical support, etc",
					"personal_professional": "Personal but in professional context (e.g., it was good working with you)",
				},
				TransformType:   TransformClassification,
				TaskDescription: "Classify the genre of the emails.",
			},
			{
				ColumnName: "primary_topics",
				ColumnType: "text",
				OutputValues: map[string]string{
					"legal":               "Topics around legal advice or involve legal matters",
					"other":               "Other topics not include in the existing categories",
					"political":           "Topics related political influence / contributions / contacts",
					"regulation":          "Topics around regulations and regulators (includes price caps)",
					"company_image":       "Topics around company image",
					"energy_crisis":       "Topics related to california energy crisis / california politics",
					"internal_project":    "Topics around internal projects -- progress and strategy",
					"internal_operations": "Topics around Internal operations",
				},
				TransformType:   TransformClassification,
				TaskDescription: "Classify the specific topics of conversation",
			},
			{
				ColumnName: "emotional_tone",
				ColumnType: "text",
				OutputValues: map[string]string{
					"anger":     "The email has angry, aggressive or agitate tone.",
					"humor":     "The email is funny or has humorous tone",
					"secret":    "The email has secrecy / confidentiality tone or contains confidential information.",
					"concern":   "The email seems concern, worry or anxious",
					"neutral":   "The email is neutral",
					"gratitude": "The email has gratitude or admiration tone",
				},
				TransformType:   TransformClassification,
				TaskDescription: "Classify the tone and intent of the message.",
			},
			{
				ColumnName:      "date",
				ColumnType:      "text",
				TransformType:   TransformExtraction,
				TaskDescription: "Extract the date of the email in MM/DD/YYYY format",
			},
		},
	}
}
