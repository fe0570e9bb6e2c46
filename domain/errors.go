package domain

import "errors"

// Failure taxonomy shared by the pipeline, the websocket hub and the HTTP API.
var (
	ErrMalformedInput  = errors.New("malformed input")
	ErrAnalysisFailed  = errors.New("analysis failed")
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrSuppressed is not a failure: the session was inactive so nothing is emitted.
	ErrSuppressed = errors.New("emission suppressed")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrTransportClosed = errors.New("transport closed")
)
