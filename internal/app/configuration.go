package app

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/lexi/internal/capture"
	"github.com/ayusman/lexi/internal/detector"
	"github.com/ayusman/lexi/internal/sampler"
	"github.com/ayusman/lexi/internal/session"
)

const (
	DefaultListen = "127.0.0.1:8080"

	// defaultMotionThreshold is the percentage of changed pixels counted as motion.
	defaultMotionThreshold = 1.0
)

// FlagHolder is satisfied by kingpin applications and commands.
type FlagHolder interface {
	Flag(name, help string) *kingpin.FlagClause
}

// NewConfiguration returns the defaults.
func NewConfiguration() Configuration {
	return Configuration{
		Listen:        DefaultListen,
		Threshold:     sampler.DefaultThreshold,
		FrameInterval: session.DefaultFrameInterval,
		Motion: MotionConfiguration{
			Threshold: defaultMotionThreshold,
			Hold:      capture.DefaultMotionHold,
		},
		Camera:   capture.DefaultConfig(),
		Detector: detector.DefaultConfig(),
	}
}

type Configuration struct {
	PreventAutoSave bool `yaml:"preventAutoSave"`

	Listen    string `yaml:"listen,omitempty"`
	DataDir   string `yaml:"dataDir,omitempty"`
	StaticDir string `yaml:"staticDir,omitempty"`
	Preload   bool   `yaml:"preload,omitempty"`

	Threshold     float64       `yaml:"threshold,omitempty"`
	FrameInterval time.Duration `yaml:"frameInterval,omitempty"`
	TickTimeout   time.Duration `yaml:"tickTimeout,omitempty"`

	Motion   MotionConfiguration `yaml:"motion,omitempty"`
	Camera   capture.Config      `yaml:"camera,omitempty"`
	Detector detector.Config     `yaml:"detector,omitempty"`
}

// MotionConfiguration controls the still-frame gate in front of detection.
type MotionConfiguration struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold,omitempty"`
	Hold      int     `yaml:"hold,omitempty"`
}

func (c *Configuration) SetupConfiguration(using FlagHolder) {
	using.Flag("preventAutoSave", "If provided configuration will NOT automatically be saved.").
		Envar("LEXI_PREVENT_AUTO_SAVE").
		BoolVar(&c.PreventAutoSave)
	using.Flag("listen", "Address the HTTP API listens on.").
		Envar("LEXI_LISTEN").
		StringVar(&c.Listen)
	using.Flag("dataDir", "Directory holding the sign database.").
		Envar("LEXI_DATA_DIR").
		StringVar(&c.DataDir)
	using.Flag("staticDir", "Directory with the web interface to serve.").
		Envar("LEXI_STATIC_DIR").
		StringVar(&c.StaticDir)
	using.Flag("preload", "Load the hand detector and classifier at startup.").
		Envar("LEXI_PRELOAD").
		BoolVar(&c.Preload)
	using.Flag("threshold", "Minimum classifier score (0-10) for a sign to be accepted.").
		Envar("LEXI_THRESHOLD").
		Float64Var(&c.Threshold)
	using.Flag("frameInterval", "Time between two frames being translated.").
		Envar("LEXI_FRAME_INTERVAL").
		DurationVar(&c.FrameInterval)
	using.Flag("tickTimeout", "Upper bound for translating a single frame. 0 means none.").
		Envar("LEXI_TICK_TIMEOUT").
		DurationVar(&c.TickTimeout)
	using.Flag("motion", "Skip detection on frames without motion.").
		Envar("LEXI_MOTION").
		BoolVar(&c.Motion.Enabled)
	using.Flag("motion.threshold", "Percentage of changed pixels that counts as motion.").
		Envar("LEXI_MOTION_THRESHOLD").
		Float64Var(&c.Motion.Threshold)
	using.Flag("camera.device", "Camera device index.").
		Envar("LEXI_CAMERA_DEVICE").
		IntVar(&c.Camera.Device)
	using.Flag("detector.script", "Path of mediapipe_service.py.").
		Envar("LEXI_DETECTOR_SCRIPT").
		StringVar(&c.Detector.ScriptPath)
	using.Flag("detector.python", "Python interpreter running the detector.").
		Envar("LEXI_DETECTOR_PYTHON").
		StringVar(&c.Detector.PythonPath)
}

func (c *Configuration) loadFrom(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (c *Configuration) loadFromFile(fn string, ignoreNotFound bool) error {
	f, err := os.Open(fn)
	if os.IsNotExist(err) && ignoreNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot open configuration file %q: %w", fn, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := c.loadFrom(f); err != nil {
		return fmt.Errorf("cannot load configuration file %q: %w", fn, err)
	}

	return nil
}

func (c *Configuration) saveTo(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(c)
}

func (c *Configuration) saveToFile(fn string) error {
	_ = os.MkdirAll(filepath.Dir(fn), 0700)

	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("cannot open configuration file %q: %w", fn, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := c.saveTo(f); err != nil {
		return fmt.Errorf("cannot write file %q: %w", fn, err)
	}

	return nil
}

func defaultConfigurationFile() string {
	u, err := user.Current()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(u.HomeDir, ".lexi", "config.yaml")
}
