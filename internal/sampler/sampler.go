// Package sampler turns one video frame into at most one recognised sign.
package sampler

import (
	"context"
	"fmt"

	log "github.com/echocat/slf4g"
	"gocv.io/x/gocv"

	"github.com/ayusman/lexi/internal/model"
)

// DefaultThreshold is the confidence a match has to exceed to be accepted.
const DefaultThreshold = 8.5

// Stage names where in a tick sampling failed.
type Stage string

const (
	StageDetect   Stage = "detect"
	StageClassify Stage = "classify"
)

// FrameSampleError is a failure while sampling a single frame. It is only
// ever logged; the frame counts as showing no sign.
type FrameSampleError struct {
	Stage Stage
	Err   error
}

func (e *FrameSampleError) Error() string {
	return fmt.Sprintf("sample frame (%s): %v", e.Stage, e.Err)
}

func (e *FrameSampleError) Unwrap() error {
	return e.Err
}

// Sampler picks the best sign for a frame.
type Sampler struct {
	threshold float64

	// OnError, if set, is called with every FrameSampleError.
	OnError func(*FrameSampleError)
}

// New creates a Sampler. A threshold <= 0 selects DefaultThreshold.
func New(threshold float64) *Sampler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Sampler{threshold: threshold}
}

// Threshold returns the acceptance threshold.
func (s *Sampler) Threshold() float64 {
	return s.threshold
}

// Sample detects hands in frame, classifies the first one and returns the
// best label if its score is strictly above the threshold.
//
// Only the detector's primary hand is considered. Among matches with the
// same best score the one listed last wins.
func (s *Sampler) Sample(ctx context.Context, h *model.Handles, frame *gocv.Mat) (string, bool) {
	if h == nil {
		return "", false
	}

	hands, err := h.Detector.Detect(ctx, frame)
	if err != nil {
		s.fail(StageDetect, err)
		return "", false
	}
	if len(hands) == 0 {
		return "", false
	}

	matches, err := h.Classifier.Classify(ctx, &hands[0], s.threshold)
	if err != nil {
		s.fail(StageClassify, err)
		return "", false
	}
	if len(matches) == 0 {
		return "", false
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.Score >= best.Score {
			best = m
		}
	}

	if best.Score > s.threshold {
		return best.Label, true
	}
	return "", false
}

func (s *Sampler) fail(stage Stage, err error) {
	fe := &FrameSampleError{Stage: stage, Err: err}
	log.WithError(fe).Debug("Frame skipped.")
	if s.OnError != nil {
		s.OnError(fe)
	}
}
