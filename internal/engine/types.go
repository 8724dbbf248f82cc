package engine

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the inference parameters passed with each request. Zero values
// leave the backend default in place.
type Options struct {
	MaxTokens   int
	Stop        []string
	Temperature *float64
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
