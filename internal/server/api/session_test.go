package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayusman/lexi/internal/model"
	"github.com/ayusman/lexi/internal/session"
)

type fakeSession struct {
	state     session.State
	text      string
	calls     []string
	startErr  error
	stopErr   error
	reloadErr error
}

func (f *fakeSession) Start(context.Context) error {
	f.calls = append(f.calls, "start")
	if f.startErr != nil {
		return f.startErr
	}
	f.state = session.Translating
	return nil
}

func (f *fakeSession) Pause() {
	f.calls = append(f.calls, "pause")
	f.state = session.Paused
}

func (f *fakeSession) Resume() {
	f.calls = append(f.calls, "resume")
	f.state = session.Translating
}

func (f *fakeSession) Stop() error {
	f.calls = append(f.calls, "stop")
	f.state = session.Idle
	return f.stopErr
}

func (f *fakeSession) Clear() {
	f.calls = append(f.calls, "clear")
	f.text = ""
}

func (f *fakeSession) Reload() error {
	f.calls = append(f.calls, "reload")
	return f.reloadErr
}

func (f *fakeSession) Snapshot() session.Snapshot {
	return session.Snapshot{State: f.state, Text: f.text}
}

func TestSessionHandler_Get(t *testing.T) {
	fake := &fakeSession{state: session.Paused, text: "hello yes"}
	handler := NewSessionHandler(fake)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response struct {
		State string `json:"state"`
		Text  string `json:"text"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.State != "paused" {
		t.Errorf("expected state paused, got %q", response.State)
	}
	if response.Text != "hello yes" {
		t.Errorf("expected text 'hello yes', got %q", response.Text)
	}
}

func TestSessionHandler_Actions(t *testing.T) {
	fake := &fakeSession{text: "hello"}
	handler := NewSessionHandler(fake)

	actions := []struct {
		action string
		state  string
	}{
		{"start", "translating"},
		{"pause", "paused"},
		{"resume", "translating"},
		{"clear", "translating"},
		{"stop", "idle"},
		{"reload", "idle"},
	}

	for _, a := range actions {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/"+a.action, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d: %s", a.action, http.StatusOK, rec.Code, rec.Body.String())
		}
		var snap struct {
			State string `json:"state"`
		}
		json.NewDecoder(rec.Body).Decode(&snap)
		if snap.State != a.state {
			t.Errorf("%s: expected state %s, got %s", a.action, a.state, snap.State)
		}
	}

	want := []string{"start", "pause", "resume", "clear", "stop", "reload"}
	if fmt.Sprint(fake.calls) != fmt.Sprint(want) {
		t.Errorf("expected calls %v, got %v", want, fake.calls)
	}
	if fake.text != "" {
		t.Errorf("clear should empty the text, got %q", fake.text)
	}
}

func TestSessionHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		fake   *fakeSession
		action string
		want   int
	}{
		{
			name:   "load failure",
			fake:   &fakeSession{startErr: &model.LoadError{Capability: model.CapabilityDetector, Err: errors.New("boom")}},
			action: "start",
			want:   http.StatusServiceUnavailable,
		},
		{
			name:   "camera failure",
			fake:   &fakeSession{startErr: fmt.Errorf("%w: no device", session.ErrFrameSource)},
			action: "start",
			want:   http.StatusServiceUnavailable,
		},
		{
			name:   "reload while running",
			fake:   &fakeSession{reloadErr: session.ErrBusy},
			action: "reload",
			want:   http.StatusConflict,
		},
		{
			name:   "stop failure",
			fake:   &fakeSession{stopErr: errors.New("close failed")},
			action: "stop",
			want:   http.StatusInternalServerError,
		},
		{
			name:   "unknown action",
			fake:   &fakeSession{},
			action: "dance",
			want:   http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewSessionHandler(tt.fake).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session/"+tt.action, nil))
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestSessionHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSessionHandler(&fakeSession{})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/session", nil),
		httptest.NewRequest(http.MethodGet, "/api/session/start", nil),
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status %d, got %d", r.Method, r.URL.Path, http.StatusMethodNotAllowed, rec.Code)
		}
	}
}
