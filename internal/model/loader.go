// Package model manages the one-time acquisition of the hand detector and
// gesture classifier used by a translation session.
package model

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	log "github.com/echocat/slf4g"
	"golang.org/x/sync/singleflight"

	"github.com/ayusman/lexi/internal/detector"
	"github.com/ayusman/lexi/internal/gesture"
	"github.com/ayusman/lexi/internal/vocabulary"
)

// Handles are the loaded capabilities. They are immutable once returned by
// EnsureLoaded and shared read-only by every tick of a session.
type Handles struct {
	Detector          detector.Detector
	Classifier        gesture.Classifier
	VocabularyVersion string
}

// VocabularySource supplies the vocabulary the classifier is built from.
type VocabularySource func(ctx context.Context) (*vocabulary.Vocabulary, error)

// DetectorFactory acquires a hand detector.
type DetectorFactory func(ctx context.Context) (detector.Detector, error)

// ClassifierFactory builds a classifier for a vocabulary.
type ClassifierFactory func(ctx context.Context, vocab *vocabulary.Vocabulary) (gesture.Classifier, error)

// StaticVocabulary returns a VocabularySource that always yields v.
func StaticVocabulary(v *vocabulary.Vocabulary) VocabularySource {
	return func(context.Context) (*vocabulary.Vocabulary, error) {
		return v, nil
	}
}

// CurlClassifierFactory builds a gesture.CurlClassifier.
func CurlClassifierFactory(_ context.Context, vocab *vocabulary.Vocabulary) (gesture.Classifier, error) {
	return gesture.NewCurlClassifier(vocab)
}

// Config wires the capability factories into a Loader.
type Config struct {
	Vocabulary VocabularySource
	Detector   DetectorFactory
	Classifier ClassifierFactory

	// OnStatus receives advisory loading notifications. Optional.
	OnStatus func(StatusEvent)
}

// Loader acquires the capabilities at most once at a time and caches them.
type Loader struct {
	config Config
	group  singleflight.Group

	mu      sync.Mutex
	handles *Handles
	// epoch is bumped by Release; loads started before it are discarded.
	epoch uint64
}

// NewLoader creates a Loader. A nil Classifier factory defaults to the curl classifier.
func NewLoader(config Config) *Loader {
	if config.Classifier == nil {
		config.Classifier = CurlClassifierFactory
	}
	if config.Vocabulary == nil {
		config.Vocabulary = StaticVocabulary(vocabulary.Default())
	}
	return &Loader{config: config}
}

// Loaded reports whether handles are cached.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles != nil
}

// EnsureLoaded returns the cached handles, acquiring them first if needed.
// Concurrent callers share one acquisition. A caller whose ctx ends stops
// waiting, but the shared acquisition keeps going for the others.
// Failures are returned as *LoadError and leave the loader retryable.
func (l *Loader) EnsureLoaded(ctx context.Context) (*Handles, error) {
	l.mu.Lock()
	if h := l.handles; h != nil {
		l.mu.Unlock()
		return h, nil
	}
	epoch := l.epoch
	l.mu.Unlock()

	// One flight per epoch: callers after a Release never join a stale one.
	ch := l.group.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		return l.load(context.WithoutCancel(ctx), epoch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handles), nil
	case <-ctx.Done():
		return nil, &LoadError{Capability: CapabilityAll, Err: ctx.Err()}
	}
}

func (l *Loader) load(ctx context.Context, epoch uint64) (*Handles, error) {
	// A previous flight may have finished between the cache check and DoChan.
	l.mu.Lock()
	if h := l.handles; h != nil {
		l.mu.Unlock()
		return h, nil
	}
	l.mu.Unlock()

	l.notify(StatusEvent{Status: StatusLoading})
	log.Info("Loading sign language detection model...")

	h, err := l.acquire(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load sign language detection model.")
		l.notify(StatusEvent{Status: StatusFailed, Err: err})
		return nil, err
	}

	l.mu.Lock()
	if l.epoch != epoch {
		l.mu.Unlock()
		if cerr := h.Detector.Close(); cerr != nil {
			log.WithError(cerr).Warn("Cannot close detector of a discarded load.")
		}
		log.Info("Model released while loading, result discarded.")
		return nil, &LoadError{Capability: CapabilityAll, Err: ErrReleased}
	}
	l.handles = h
	l.mu.Unlock()

	log.With("vocabulary", h.VocabularyVersion).
		Info("Sign language detection model loaded.")
	l.notify(StatusEvent{Status: StatusLoaded})
	return h, nil
}

func (l *Loader) acquire(ctx context.Context) (*Handles, error) {
	if l.config.Detector == nil {
		return nil, &LoadError{Capability: CapabilityDetector, Err: errors.New("no detector factory configured")}
	}

	vocab, err := l.config.Vocabulary(ctx)
	if err != nil {
		return nil, &LoadError{Capability: CapabilityVocabulary, Err: err}
	}
	if err := vocab.Validate(); err != nil {
		return nil, &LoadError{Capability: CapabilityVocabulary, Err: err}
	}

	det, err := l.config.Detector(ctx)
	if err != nil {
		return nil, &LoadError{Capability: CapabilityDetector, Err: err}
	}
	if det == nil {
		return nil, &LoadError{Capability: CapabilityDetector, Err: errors.New("factory returned no detector")}
	}

	cls, err := l.config.Classifier(ctx, vocab)
	if err == nil && cls == nil {
		err = errors.New("factory returned no classifier")
	}
	if err != nil {
		if cerr := det.Close(); cerr != nil {
			log.WithError(cerr).Warn("Cannot close detector after failed load.")
		}
		return nil, &LoadError{Capability: CapabilityClassifier, Err: err}
	}

	return &Handles{
		Detector:          det,
		Classifier:        cls,
		VocabularyVersion: vocab.Version(),
	}, nil
}

// Release drops the cached handles and closes the detector, so that the
// next EnsureLoaded acquires fresh capabilities. An acquisition still in
// flight is discarded when it finishes. Callers must make sure no tick still
// uses the old handles.
func (l *Loader) Release() error {
	l.mu.Lock()
	h := l.handles
	l.handles = nil
	l.epoch++
	l.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.Detector.Close(); err != nil {
		return fmt.Errorf("close detector: %w", err)
	}
	return nil
}

func (l *Loader) notify(ev StatusEvent) {
	if fn := l.config.OnStatus; fn != nil {
		fn(ev)
	}
}
