package model

import (
	"errors"
	"fmt"
)

// ErrLoad matches every *LoadError with errors.Is.
var ErrLoad = errors.New("model load failed")

// ErrReleased is the cause of a LoadError for an acquisition that finished
// after Release; its result was discarded.
var ErrReleased = errors.New("model released while loading")

// Capability names the part of the model that failed to load.
type Capability string

const (
	CapabilityVocabulary Capability = "vocabulary"
	CapabilityDetector   Capability = "detector"
	CapabilityClassifier Capability = "classifier"
	// CapabilityAll is used when the caller gave up waiting.
	CapabilityAll Capability = "model"
)

// LoadError reports a failed capability acquisition.
type LoadError struct {
	Capability Capability
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Capability, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is reports ErrLoad as a match.
func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

// Status is an advisory loading notification.
type Status int

const (
	StatusLoading Status = iota
	StatusLoaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusEvent carries a Status and, for StatusFailed, the cause.
type StatusEvent struct {
	Status Status
	Err    error
}
