package detector

import (
	"context"

	"gocv.io/x/gocv"
)

// Detector defines the interface for hand landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks,
	// primary hand first. Returns an empty slice if no hands are detected.
	Detect(ctx context.Context, frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int `yaml:"maxHands,omitempty"`

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64 `yaml:"minConfidence,omitempty"`

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64 `yaml:"minTrackingConfidence,omitempty"`

	// ScriptPath overrides the location of mediapipe_service.py.
	ScriptPath string `yaml:"scriptPath,omitempty"`

	// PythonPath overrides the interpreter used to run the script.
	PythonPath string `yaml:"pythonPath,omitempty"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
