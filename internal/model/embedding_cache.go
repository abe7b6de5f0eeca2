package model

// EmbeddingCache is a stored vector keyed by the embedder that produced it,
// the task type and a hash of the input text.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}

func (c *EmbeddingCache) Dimension() int {
	return len(c.Embedding)
}
