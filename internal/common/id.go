package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewSessionID generates an opaque session identifier
func NewSessionID() string {
	return uuid.New().String()
}
