// Package app wires the store, the model loader, the translation session and
// the HTTP API together.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	log "github.com/echocat/slf4g"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/lexi/internal/capture"
	"github.com/ayusman/lexi/internal/detector"
	"github.com/ayusman/lexi/internal/model"
	"github.com/ayusman/lexi/internal/server"
	"github.com/ayusman/lexi/internal/session"
	"github.com/ayusman/lexi/internal/store"
	"github.com/ayusman/lexi/internal/vocabulary"
)

const databaseFile = "lexi.db"

type App struct {
	ConfigurationFile string

	// DetectorFactory replaces the MediaPipe detector when set.
	DetectorFactory model.DetectorFactory
	// FrameSource replaces the configured camera when set.
	FrameSource session.FrameSource

	// OnText and OnState receive session notifications after the
	// transcript subscribers. They must not call back into the session.
	OnText  func(text string)
	OnState func(state session.State)

	configFromFlags Configuration
	config          Configuration

	store   *store.Store
	loader  *model.Loader
	motion  *capture.MotionDetector
	session *session.Session
	hub     *server.Hub
	server  *server.Server
}

func (a *App) SetupConfiguration(using FlagHolder) {
	a.configFromFlags.SetupConfiguration(using)

	using.Flag("configuration", "Defines the file from which the configuration should be loaded and/or stored to.").
		Short('c').
		Envar("LEXI_CONFIGURATION").
		StringVar(&a.ConfigurationFile)
}

// Configuration returns the effective configuration after Initialize.
func (a *App) Configuration() Configuration {
	return a.config
}

// Session returns the translation session after Initialize.
func (a *App) Session() *session.Session {
	return a.session
}

// Handler returns the HTTP API after Initialize.
func (a *App) Handler() http.Handler {
	return a.server
}

func (a *App) Initialize() (rErr error) {
	success := false
	defer func() {
		if !success {
			if err := a.Dispose(); err != nil && rErr == nil {
				rErr = err
			}
		}
	}()

	a.config = NewConfiguration()
	if err := a.config.loadFromFile(a.configurationFile(), true); err != nil {
		return err
	}
	if err := mergo.Merge(&a.config, a.configFromFlags, mergo.WithOverride); err != nil {
		return err
	}

	if err := a.initializeStore(); err != nil {
		return err
	}

	a.hub = server.NewHub(func() session.Snapshot {
		return a.session.Snapshot()
	})

	a.loader = model.NewLoader(model.Config{
		Vocabulary: a.vocabulary,
		Detector:   a.detectorFactory(),
		Classifier: model.CurlClassifierFactory,
		OnStatus:   a.hub.PublishStatus,
	})

	source := a.FrameSource
	if source == nil {
		source = capture.NewCamera(a.config.Camera)
	}

	sc := session.Config{
		Threshold:     a.config.Threshold,
		FrameInterval: a.config.FrameInterval,
		TickTimeout:   a.config.TickTimeout,
		OnText:        a.notifyText,
		OnState:       a.notifyState,
	}
	if m := a.config.Motion; m.Enabled {
		a.motion = capture.NewMotionDetector(m.Threshold, m.Hold)
		sc.Motion = a.motion
	}
	a.session = session.New(a.loader, source, sc)

	a.server = server.New(server.Config{
		StaticDir: a.config.StaticDir,
		Store:     a.store,
		Session:   a.session,
		Hub:       a.hub,
	})

	if err := a.saveConf(false); err != nil {
		return err
	}

	success = true
	return nil
}

func (a *App) initializeStore() error {
	dir := a.config.DataDir
	if dir == "" {
		dir = filepath.Dir(a.configurationFile())
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("cannot create data directory %q: %w", dir, err)
	}

	st, err := store.New(filepath.Join(dir, databaseFile))
	if err != nil {
		return err
	}
	a.store = st

	seeded, err := st.SeedDefaults()
	if err != nil {
		return err
	}
	if seeded {
		log.With("signs", len(vocabulary.Default().Descriptors)).
			Info("Default vocabulary installed.")
	}
	return nil
}

func (a *App) vocabulary(context.Context) (*vocabulary.Vocabulary, error) {
	return a.store.Vocabulary()
}

func (a *App) detectorFactory() model.DetectorFactory {
	if a.DetectorFactory != nil {
		return a.DetectorFactory
	}
	config := a.config.Detector
	return func(context.Context) (detector.Detector, error) {
		d, err := detector.NewMediaPipeDetector(config)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func (a *App) notifyText(text string) {
	a.hub.PublishText(text)
	if fn := a.OnText; fn != nil {
		fn(text)
	}
}

func (a *App) notifyState(state session.State) {
	log.With("state", state).Debug("Session state changed.")
	a.hub.PublishState(state)
	if fn := a.OnState; fn != nil {
		fn(state)
	}
}

// Run serves the API until ctx is done and stops translating afterwards.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Serve(gCtx, a.config.Listen)
	})

	if a.config.Preload {
		g.Go(func() error {
			if err := a.session.Preload(gCtx); err != nil {
				log.WithError(err).
					Warn("Cannot preload the sign models.")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.session.Stop()
	})

	return g.Wait()
}

func (a *App) configurationFile() string {
	if a.ConfigurationFile != "" {
		return a.ConfigurationFile
	}
	return defaultConfigurationFile()
}

func (a *App) saveConf(always bool) error {
	if a.config.PreventAutoSave {
		log.Debug("Automatically save of configuration disabled.")
		return nil
	}

	fn := a.configurationFile()
	if !always {
		_, err := os.Stat(fn)
		if os.IsNotExist(err) {
			log.With("file", fn).Info("Configuration absent.")
		} else if err != nil {
			return err
		} else {
			return nil
		}
	}

	if err := a.config.saveToFile(fn); err != nil {
		return err
	}

	log.With("file", fn).Info("Configuration saved.")

	return nil
}

func (a *App) Dispose() (rErr error) {
	defer func() {
		if a.store == nil {
			return
		}
		if err := a.store.Close(); err != nil && rErr == nil {
			rErr = err
		}
		a.store = nil
	}()

	defer func() {
		if a.motion != nil {
			a.motion.Close()
			a.motion = nil
		}
	}()

	if a.session != nil {
		return a.session.Close()
	}
	if a.loader != nil {
		return a.loader.Release()
	}
	return nil
}
