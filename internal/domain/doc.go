// Package domain defines the classification task record, its statuses and the
// invariants that tie a task's status to its result and error fields.
package domain
