// Package service contains the application use cases for classification
// tasks: submission, status lookup and listing. It coordinates the task store
// and the work queue, and translates their errors into the sentinel errors
// the API layer maps to HTTP status codes.
//
// Services receive their dependencies through constructor injection and
// depend only on the interfaces in internal/store and internal/task, never on
// a concrete database or broker.
package service
