// Package task runs classification tasks in the background.
//
// A submitted task is stored as pending and its id is placed on a Queue.
// Workers pull jobs, claim the task with a compare-and-set from pending to
// processing, call the Classifier under a retry policy and record exactly one
// terminal outcome. Delivery is at-least-once; the claim makes duplicate
// deliveries harmless.
package task
