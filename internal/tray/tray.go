// Package tray provides a system tray menu for controlling captioning.
package tray

import (
	"context"
	"sync"

	log "github.com/echocat/slf4g"
	"github.com/getlantern/systray"

	"github.com/ayusman/lexi/internal/session"
)

// maxTextLen bounds the transcript tail shown in the menu.
const maxTextLen = 40

// Controls is the part of a session the tray drives.
type Controls interface {
	Start(ctx context.Context) error
	Pause()
	Resume()
	Clear()
	State() session.State
}

// Tray represents the system tray application.
type Tray struct {
	controls Controls
	onQuit   func()
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuLastText *systray.MenuItem
}

// New creates a new Tray bound to controls.
func New(controls Controls) *Tray {
	return &Tray{controls: controls}
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, nil)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Lexi")
	systray.SetTooltip("Lexi sign language captions")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.controls.State()), "Start or pause translating")
	systray.AddSeparator()

	t.menuLastText = systray.AddMenuItem(lastTextTitle(""), "Current transcript")
	t.menuLastText.Disable()
	t.mu.Unlock()

	menuClear := systray.AddMenuItem("Clear", "Clear the transcript")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Lexi")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuClear.ClickedCh:
				t.controls.Clear()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// handleToggle starts, pauses or resumes depending on the current state.
func (t *Tray) handleToggle() {
	switch t.controls.State() {
	case session.Translating:
		t.controls.Pause()
	case session.Paused:
		t.controls.Resume()
	case session.Idle, session.Ready:
		go func() {
			if err := t.controls.Start(context.Background()); err != nil {
				log.WithError(err).Warn("Cannot start translating.")
			}
		}()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetState updates the toggle item for state.
func (t *Tray) SetState(state session.State) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(state))
	}
}

// SetText shows the end of the transcript in the menu.
func (t *Tray) SetText(text string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastText != nil {
		t.menuLastText.SetTitle(lastTextTitle(text))
	}
}

func toggleTitle(state session.State) string {
	switch state {
	case session.Translating:
		return "● Translating"
	case session.Paused:
		return "○ Paused"
	case session.Loading:
		return "… Loading"
	default:
		return "Start translating"
	}
}

func lastTextTitle(text string) string {
	if text == "" {
		return "Last: none"
	}
	r := []rune(text)
	if len(r) > maxTextLen {
		text = "…" + string(r[len(r)-maxTextLen:])
	}
	return "Last: " + text
}
