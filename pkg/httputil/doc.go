// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
//
// All operational errors leave the process as a JSON body of the form
// {"error": "..."} with the status code carrying the error class:
//
//	400 validation error
//	401 unauthenticated
//	403 forbidden
//	409 duplicate credential / conflict
//	429 rate limited
//	502 upstream unavailable
//	500 internal error
//
// Handlers return errors inward; only this package converts them to HTTP.
package httputil
