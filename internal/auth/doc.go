// Package auth verifies bearer tokens presented to the API. Tokens are issued
// by an external auth service and signed with a shared HMAC secret; this
// package never issues tokens outside of tests.
package auth
