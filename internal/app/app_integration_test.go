package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/lexi/internal/detector"
	"github.com/ayusman/lexi/internal/session"
)

// blankSource delivers empty frames; detection is mocked.
type blankSource struct{}

func (blankSource) Open() error                   { return nil }
func (blankSource) ReadFrame() (*gocv.Mat, error) { return nil, nil }
func (blankSource) Close() error                  { return nil }

type textLog struct {
	mu    sync.Mutex
	texts []string
}

func (l *textLog) add(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.texts = append(l.texts, text)
}

func (l *textLog) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.texts) == 0 {
		return ""
	}
	return l.texts[len(l.texts)-1]
}

// newTestApp parses args like the command line would and initializes an App
// whose files live in a temporary directory.
func newTestApp(t *testing.T, det detector.Detector, args ...string) *App {
	t.Helper()
	dir := t.TempDir()

	a := &App{
		DetectorFactory: func(context.Context) (detector.Detector, error) { return det, nil },
		FrameSource:     blankSource{},
	}
	cmd := kingpin.New("lexi", "")
	a.SetupConfiguration(cmd)

	args = append([]string{
		"--configuration=" + filepath.Join(dir, "config.yaml"),
		"--frameInterval=1ms",
	}, args...)
	_, err := cmd.Parse(args)
	require.NoError(t, err)

	require.NoError(t, a.Initialize())
	t.Cleanup(func() { _ = a.Dispose() })
	return a
}

func helpDetector() *detector.MockDetector {
	d := detector.NewMockDetector()
	d.SetHands([]detector.HandLandmarks{
		detector.PoseLandmarks([detector.NumFingers]float64{0, 120, 120, 120, 120}),
	})
	return d
}

func TestApp_Initialize_SavesConfiguration(t *testing.T) {
	a := newTestApp(t, helpDetector())

	_, err := os.Stat(a.ConfigurationFile)
	require.NoError(t, err, "configuration should be written on first run")
	_, err = os.Stat(filepath.Join(filepath.Dir(a.ConfigurationFile), databaseFile))
	require.NoError(t, err, "database should live next to the configuration")

	var loaded Configuration
	require.NoError(t, loaded.loadFromFile(a.ConfigurationFile, false))
	assert.Equal(t, a.Configuration().Listen, loaded.Listen)
	assert.Equal(t, time.Millisecond, loaded.FrameInterval)
}

func TestApp_Initialize_PreventAutoSave(t *testing.T) {
	a := newTestApp(t, helpDetector(), "--preventAutoSave")

	_, err := os.Stat(a.ConfigurationFile)
	assert.True(t, os.IsNotExist(err), "configuration must not be written")
}

func TestApp_Initialize_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("listen: 127.0.0.1:9999\nthreshold: 7\n"), 0600))

	a := &App{
		DetectorFactory: func(context.Context) (detector.Detector, error) { return helpDetector(), nil },
		FrameSource:     blankSource{},
	}
	cmd := kingpin.New("lexi", "")
	a.SetupConfiguration(cmd)
	_, err := cmd.Parse([]string{"-c", fn, "--threshold=9.5"})
	require.NoError(t, err)
	require.NoError(t, a.Initialize())
	defer a.Dispose()

	c := a.Configuration()
	assert.Equal(t, 9.5, c.Threshold)
	assert.Equal(t, "127.0.0.1:9999", c.Listen)
	assert.Equal(t, 9.5, a.Session().Threshold())
}

func TestApp_Initialize_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("threshhold: 7\n"), 0600))

	a := &App{ConfigurationFile: fn}
	err := a.Initialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), fn)
}

func TestApp_TranslatesOverHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	var texts textLog
	det := helpDetector()
	a := newTestApp(t, det)
	a.OnText = texts.add

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	post := func(action string) {
		t.Helper()
		resp, err := ts.Client().Post(ts.URL+"/api/session/"+action, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, action)
	}

	post("start")
	require.Eventually(t, func() bool { return a.Session().Text() == "help" }, 2*time.Second, time.Millisecond)
	assert.Equal(t, "help", texts.last())

	post("stop")

	resp, err := ts.Client().Get(ts.URL + "/api/session")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap struct {
		State  string `json:"state"`
		Text   string `json:"text"`
		Loaded bool   `json:"loaded"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "idle", snap.State)
	assert.Equal(t, "help", snap.Text, "repeated signs collapse into one word")
	assert.True(t, snap.Loaded)

	require.NoError(t, a.Dispose())
	assert.True(t, det.Closed(), "dispose releases the detector")
}

func TestApp_Run(t *testing.T) {
	a := newTestApp(t, helpDetector(), "--listen=127.0.0.1:0", "--preload")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Session().State() == session.Ready }, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
