// Package logger provides structured logging for the moderation service.
//
// Logs are JSON lines written through log/slog. A request- or task-scoped
// logger travels in the context so handlers and workers can attach fields
// such as trace_id and task_id once and reuse them downstream.
package logger
