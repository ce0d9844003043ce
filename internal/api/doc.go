// Package api exposes the classification task service over HTTP. Handlers
// decode and validate requests, call the task service, and map its errors
// to status codes and safe client messages.
package api
