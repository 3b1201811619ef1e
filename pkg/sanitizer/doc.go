// Package sanitizer normalizes reference data before it is stored.
//
// All functions are idempotent. Invalid input never produces an error: blank
// values collapse to "" and are dropped from slices.
package sanitizer
