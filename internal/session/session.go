// Package session drives live translation: it loads the model, runs the
// per-frame loop while translating and keeps the transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/echocat/slf4g"
	"github.com/google/uuid"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"

	"github.com/ayusman/lexi/internal/model"
	"github.com/ayusman/lexi/internal/sampler"
	"github.com/ayusman/lexi/internal/transcript"
)

// DefaultFrameInterval paces ticks at roughly the display rate.
const DefaultFrameInterval = 33 * time.Millisecond

var (
	// ErrFrameSource is returned by Start when the frame source cannot be opened.
	ErrFrameSource = errors.New("frame source unavailable")
	// ErrBusy is returned by Reload while frames are being translated, and by
	// Start while a reload is in progress.
	ErrBusy = errors.New("session busy")
)

// FrameSource supplies video frames. capture.Camera satisfies it.
type FrameSource interface {
	Open() error
	ReadFrame() (*gocv.Mat, error)
	Close() error
}

// MotionGate tells whether a frame differs enough from the previous one to
// be worth sampling. capture.MotionDetector satisfies it.
type MotionGate interface {
	Detect(frame *gocv.Mat) (bool, float64)
	Reset()
}

// Loader acquires the detection capabilities. model.Loader satisfies it.
type Loader interface {
	EnsureLoaded(ctx context.Context) (*model.Handles, error)
	Loaded() bool
	Release() error
}

// Config holds the tunables of a Session.
type Config struct {
	// Threshold is the score a sign must exceed. Zero selects sampler.DefaultThreshold.
	Threshold float64
	// FrameInterval is the minimum time between tick starts.
	FrameInterval time.Duration
	// TickTimeout bounds a single tick. Zero disables the bound.
	TickTimeout time.Duration
	// Motion, if set, skips detection on frames without motion.
	Motion MotionGate

	// OnText receives the transcript every time it changes and on clear.
	OnText func(text string)
	// OnState receives every state change.
	OnState func(state State)
}

// Snapshot is a point-in-time view of a Session.
type Snapshot struct {
	State  State    `json:"state"`
	Text   string   `json:"text"`
	Tokens []string `json:"tokens"`
	RunID  string   `json:"runId,omitempty"`
	Loaded bool     `json:"loaded"`
}

// Session is the translation state machine. All methods are safe for
// concurrent use. Callbacks are delivered one at a time in the order the
// changes happened; they must not call back into the Session.
type Session struct {
	loader  Loader
	source  FrameSource
	sampler *sampler.Sampler
	config  Config

	mu         sync.Mutex
	state      State
	handles    *model.Handles
	transcript *transcript.Accumulator
	gen        uint64
	cancel     context.CancelFunc
	loopDone   chan struct{}
	runID      string
	reloading  bool

	emitMu sync.Mutex
}

// New creates an idle Session.
func New(loader Loader, source FrameSource, config Config) *Session {
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	return &Session{
		loader:     loader,
		source:     source,
		sampler:    sampler.New(config.Threshold),
		config:     config,
		transcript: transcript.New(),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the current transcript.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Text()
}

// Snapshot returns the state and transcript together.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:  s.state,
		Text:   s.transcript.Text(),
		Tokens: s.transcript.Tokens(),
		RunID:  s.runID,
		Loaded: s.handles != nil,
	}
}

// Threshold returns the acceptance threshold in use.
func (s *Session) Threshold() float64 {
	return s.sampler.Threshold()
}

// Preload loads the model without starting translation, moving an idle
// session to Ready.
func (s *Session) Preload(ctx context.Context) error {
	_, _, _, err := s.ensureHandles(ctx)
	return err
}

// Start begins translating. The model is loaded first if needed; a load
// failure is returned as *model.LoadError and leaves the session startable.
// On success the transcript is cleared. Starting a running session does
// nothing.
func (s *Session) Start(ctx context.Context) error {
	h, gen, ok, err := s.ensureHandles(ctx)
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	if gen != s.gen || s.handles != h || (s.state != Idle && s.state != Ready) {
		// Another caller started, stopped or reloaded meanwhile.
		s.mu.Unlock()
		return nil
	}

	if err := s.source.Open(); err != nil {
		notify := s.setStateLocked(Ready)
		s.unlockAndNotify(notify)
		return fmt.Errorf("%w: %w", ErrFrameSource, err)
	}

	s.transcript.Clear()
	s.runID = uuid.NewString()
	if s.config.Motion != nil {
		s.config.Motion.Reset()
	}
	s.startLoopLocked()

	log.With("run", s.runID).
		With("threshold", s.sampler.Threshold()).
		Info("Translation started.")

	s.unlockAndNotify(s.textCall(""), s.setStateLocked(Translating))
	return nil
}

// Pause stops scheduling ticks but keeps the model and the transcript.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state != Translating {
		s.mu.Unlock()
		return
	}
	s.stopLoopLocked()
	log.With("run", s.runID).Debug("Translation paused.")
	s.unlockAndNotify(s.setStateLocked(Paused))
}

// Resume continues a paused session.
func (s *Session) Resume() {
	s.mu.Lock()
	if s.state != Paused {
		s.mu.Unlock()
		return
	}
	if s.config.Motion != nil {
		s.config.Motion.Reset()
	}
	s.startLoopLocked()
	log.With("run", s.runID).Debug("Translation resumed.")
	s.unlockAndNotify(s.setStateLocked(Translating))
}

// Stop ends translation and closes the frame source. The transcript and the
// loaded model are kept, so the final text stays readable and a new Start
// does not load again. A pending Start is abandoned.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return nil
	}
	s.stopLoopLocked()
	runID := s.runID
	s.unlockAndNotify(s.setStateLocked(Idle))

	if err := s.source.Close(); err != nil {
		return fmt.Errorf("close frame source: %w", err)
	}
	log.With("run", runID).Info("Translation stopped.")
	return nil
}

// Clear empties the transcript in any state.
func (s *Session) Clear() {
	s.mu.Lock()
	s.transcript.Clear()
	s.unlockAndNotify(s.textCall(""))
}

// Reload drops the loaded model so the next Start acquires it again, e.g.
// after the vocabulary was edited. It fails with ErrBusy unless the session
// is Idle or Ready.
func (s *Session) Reload() error {
	s.mu.Lock()
	if s.reloading || (s.state != Idle && s.state != Ready) {
		s.mu.Unlock()
		return ErrBusy
	}
	s.reloading = true
	s.gen++
	s.handles = nil
	done := s.loopDone
	s.unlockAndNotify(s.setStateLocked(Idle))

	// The last loop may still be finishing a tick with the old handles.
	if done != nil {
		<-done
	}
	err := s.loader.Release()

	s.mu.Lock()
	s.reloading = false
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("release model: %w", err)
	}
	log.Info("Model released, it will be loaded again on next start.")
	return nil
}

// Close stops the session, waits for the frame loop and releases the model.
func (s *Session) Close() error {
	err := s.Stop()
	s.wait()
	if rerr := s.loader.Release(); rerr != nil {
		err = errors.Join(err, fmt.Errorf("release model: %w", rerr))
	}
	return err
}

// ensureHandles returns the loaded handles, loading them if necessary, and
// the generation they are valid for. ok is false when the session is already
// running or when a concurrent Stop, Reload or Start superseded the load.
func (s *Session) ensureHandles(ctx context.Context) (_ *model.Handles, gen uint64, ok bool, _ error) {
	s.mu.Lock()
	if s.reloading {
		s.mu.Unlock()
		return nil, 0, false, ErrBusy
	}
	if s.state.Running() {
		s.mu.Unlock()
		return nil, 0, false, nil
	}
	if h := s.handles; h != nil {
		gen = s.gen
		s.mu.Unlock()
		return h, gen, true, nil
	}

	gen = s.gen
	s.unlockAndNotify(s.setStateLocked(Loading))

	h, err := s.loader.EnsureLoaded(ctx)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil, 0, false, nil
	}

	// Without a generation change the state is Loading, or Ready or Idle
	// when another caller waiting on the same load got there first.
	if err != nil {
		if s.state != Loading {
			s.mu.Unlock()
			return nil, 0, false, err
		}
		next := Idle
		if s.loader.Loaded() {
			next = Ready
		}
		s.unlockAndNotify(s.setStateLocked(next))
		return nil, 0, false, err
	}

	s.handles = h
	s.unlockAndNotify(s.setStateLocked(Ready))
	return h, gen, true, nil
}

func (s *Session) startLoopLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	prev := s.loopDone
	done := make(chan struct{})

	s.gen++
	s.cancel = cancel
	s.loopDone = done

	go s.run(ctx, s.gen, s.handles, prev, done)
}

func (s *Session) stopLoopLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// wait blocks until the most recent frame loop has exited.
func (s *Session) wait() {
	s.mu.Lock()
	done := s.loopDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Session) run(ctx context.Context, gen uint64, h *model.Handles, prev <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// Never overlap with a tick of the previous loop.
	if prev != nil {
		<-prev
	}

	limiter := rate.NewLimiter(rate.Every(s.config.FrameInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		s.tick(ctx, gen, h)
	}
}

func (s *Session) tick(ctx context.Context, gen uint64, h *model.Handles) {
	if s.config.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.TickTimeout)
		defer cancel()
	}

	frame, err := s.source.ReadFrame()
	if err != nil {
		log.WithError(err).Debug("Cannot read frame.")
		return
	}
	if frame != nil {
		defer frame.Close()
	}

	var (
		label string
		ok    bool
	)
	if s.hasMotion(frame) {
		label, ok = s.sampler.Sample(ctx, h, frame)
	}

	s.mu.Lock()
	if gen != s.gen || s.state != Translating || !ok {
		s.mu.Unlock()
		return
	}
	text, changed := s.transcript.Accept(label)
	if !changed {
		s.mu.Unlock()
		return
	}
	s.unlockAndNotify(s.textCall(text))
}

func (s *Session) hasMotion(frame *gocv.Mat) bool {
	if s.config.Motion == nil {
		return true
	}
	moving, _ := s.config.Motion.Detect(frame)
	return moving
}

func (s *Session) setStateLocked(next State) func() {
	if s.state == next {
		return nil
	}
	prev := s.state
	s.state = next
	log.With("from", prev).
		With("to", next).
		Debug("Session state changed.")

	if fn := s.config.OnState; fn != nil {
		return func() { fn(next) }
	}
	return nil
}

func (s *Session) textCall(text string) func() {
	if fn := s.config.OnText; fn != nil {
		return func() { fn(text) }
	}
	return nil
}

// unlockAndNotify releases s.mu and runs the notifications. emitMu is taken
// before s.mu is released so notifications keep the order of the changes.
func (s *Session) unlockAndNotify(calls ...func()) {
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	for _, call := range calls {
		if call != nil {
			call()
		}
	}
}
