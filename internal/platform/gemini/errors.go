package gemini

import "errors"

// Error definitions for the gemini package.
var (
	ErrEmptyInput = errors.New("no texts to classify")
	ErrNoLabels   = errors.New("label set cannot be empty")

	// ErrContentBlocked is returned when safety filters stop the response.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrInvalidResponse is returned when the model's answer cannot be used.
	ErrInvalidResponse = errors.New("invalid model response")
)
