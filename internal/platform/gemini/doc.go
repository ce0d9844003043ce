// Package gemini implements a zero-shot text classifier on Google's Gemini
// API. The model is prompted with the configured label set and asked for a
// JSON verdict per text, which is mapped onto the same prediction shape the
// classifier service returns.
package gemini
