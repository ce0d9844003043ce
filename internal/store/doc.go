// Package store defines the persistence contract for classification tasks.
// The contract centres on a single atomic compare-and-set of a task's status;
// terminal transitions carry their result or error in the same atomic write,
// and everything else is a derived read.
package store
