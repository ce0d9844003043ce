// Package memory provides an in-process task store for development and tests.
// State is lost when the process exits.
package memory
