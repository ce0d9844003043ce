package gemini

// promptData is passed to the prompt template.
type promptData struct {
	Labels []string
	// Texts is the JSON encoding of the input texts, one entry per line.
	Texts []string
}

// ResponseSchema is the JSON document the model is asked to return.
type ResponseSchema struct {
	Predictions []PredictionSchema `json:"predictions"`
}

// PredictionSchema is the model's verdict for one text.
type PredictionSchema struct {
	// Index is the zero-based position of the text in the request.
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}
