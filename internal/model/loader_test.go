package model

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/lexi/internal/detector"
	"github.com/ayusman/lexi/internal/gesture"
	"github.com/ayusman/lexi/internal/vocabulary"
)

type countingFactories struct {
	detectorCalls   atomic.Int32
	classifierCalls atomic.Int32
	vocabCalls      atomic.Int32

	release     chan struct{} // when non-nil, the detector factory blocks on it
	detectorErr error
	classErr    error
	vocabErr    error

	detectors []*detector.MockDetector
	mu        sync.Mutex
}

func (f *countingFactories) config() Config {
	return Config{
		Vocabulary: func(ctx context.Context) (*vocabulary.Vocabulary, error) {
			f.vocabCalls.Add(1)
			if f.vocabErr != nil {
				return nil, f.vocabErr
			}
			return vocabulary.Default(), nil
		},
		Detector: func(ctx context.Context) (detector.Detector, error) {
			f.detectorCalls.Add(1)
			if f.release != nil {
				<-f.release
			}
			if f.detectorErr != nil {
				return nil, f.detectorErr
			}
			d := detector.NewMockDetector()
			f.mu.Lock()
			f.detectors = append(f.detectors, d)
			f.mu.Unlock()
			return d, nil
		},
		Classifier: func(ctx context.Context, v *vocabulary.Vocabulary) (gesture.Classifier, error) {
			f.classifierCalls.Add(1)
			if f.classErr != nil {
				return nil, f.classErr
			}
			return gesture.NewCurlClassifier(v)
		},
	}
}

func TestLoader_EnsureLoaded_ConcurrentCallsAcquireOnce(t *testing.T) {
	f := &countingFactories{release: make(chan struct{})}
	l := NewLoader(f.config())

	const callers = 8
	results := make([]*Handles, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.EnsureLoaded(context.Background())
		}(i)
	}

	// Let every caller reach the loader before the acquisition completes.
	require.Eventually(t, func() bool { return f.detectorCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.EqualValues(t, 1, f.detectorCalls.Load())
	assert.EqualValues(t, 1, f.classifierCalls.Load())
	assert.True(t, l.Loaded())

	again, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.Same(t, results[0], again)
	assert.EqualValues(t, 1, f.detectorCalls.Load(), "cached handles must not trigger a new acquisition")
	assert.Equal(t, vocabulary.Default().Version(), again.VocabularyVersion)
}

func TestLoader_EnsureLoaded_FailureIsRetryable(t *testing.T) {
	f := &countingFactories{detectorErr: errors.New("model fetch failed")}
	var events []Status
	cfg := f.config()
	cfg.OnStatus = func(ev StatusEvent) { events = append(events, ev.Status) }
	l := NewLoader(cfg)

	h, err := l.EnsureLoaded(context.Background())
	assert.Nil(t, h)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, CapabilityDetector, le.Capability)
	assert.False(t, l.Loaded())
	assert.Equal(t, []Status{StatusLoading, StatusFailed}, events)

	f.detectorErr = nil
	h, err = l.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.EqualValues(t, 2, f.detectorCalls.Load())
	assert.Equal(t, []Status{StatusLoading, StatusFailed, StatusLoading, StatusLoaded}, events)
}

func TestLoader_EnsureLoaded_ClassifierFailureClosesDetector(t *testing.T) {
	f := &countingFactories{classErr: errors.New("compile failed")}
	l := NewLoader(f.config())

	_, err := l.EnsureLoaded(context.Background())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, CapabilityClassifier, le.Capability)

	require.Len(t, f.detectors, 1)
	assert.True(t, f.detectors[0].Closed(), "partially loaded detector must be released")
}

func TestLoader_EnsureLoaded_VocabularyFailure(t *testing.T) {
	f := &countingFactories{vocabErr: errors.New("db locked")}
	l := NewLoader(f.config())

	_, err := l.EnsureLoaded(context.Background())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, CapabilityVocabulary, le.Capability)
	assert.Zero(t, f.detectorCalls.Load())
}

func TestLoader_EnsureLoaded_NoDetectorFactory(t *testing.T) {
	l := NewLoader(Config{})

	_, err := l.EnsureLoaded(context.Background())
	assert.ErrorIs(t, err, ErrLoad)
}

func TestLoader_EnsureLoaded_WaiterGivesUp(t *testing.T) {
	f := &countingFactories{release: make(chan struct{})}
	l := NewLoader(f.config())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.EnsureLoaded(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.detectorCalls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrLoad)

	// The shared acquisition was not cancelled with the waiter.
	close(f.release)
	require.Eventually(t, l.Loaded, time.Second, time.Millisecond)

	h, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.EqualValues(t, 1, f.detectorCalls.Load())
}

func TestLoader_Release(t *testing.T) {
	f := &countingFactories{}
	l := NewLoader(f.config())

	require.NoError(t, l.Release(), "release without handles is a no-op")

	first, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.Release())
	assert.False(t, l.Loaded())
	assert.True(t, f.detectors[0].Closed())

	second, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.EqualValues(t, 2, f.detectorCalls.Load())
	assert.EqualValues(t, 2, f.vocabCalls.Load())
}

func TestLoader_Release_DiscardsLoadInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	var dets [2]*detector.MockDetector

	l := NewLoader(Config{
		Detector: func(context.Context) (detector.Detector, error) {
			n := calls.Add(1)
			if n == 1 {
				<-release
			}
			d := detector.NewMockDetector()
			dets[n-1] = d
			return d, nil
		},
	})

	stale := make(chan error, 1)
	go func() {
		_, err := l.EnsureLoaded(context.Background())
		stale <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, l.Release())

	fresh, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err, "a load after Release must not wait for the old one")
	assert.EqualValues(t, 2, calls.Load())

	close(release)
	err = <-stale
	require.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, err, ErrLoad)

	assert.True(t, dets[0].Closed(), "the discarded detector is closed")
	assert.False(t, dets[1].Closed())

	cached, err := l.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.Same(t, fresh, cached)
	assert.EqualValues(t, 2, calls.Load())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "loaded", StatusLoaded.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "status(7)", Status(7).String())
}
