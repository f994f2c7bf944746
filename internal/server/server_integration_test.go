package server

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/snoezelen/internal/app"
	"github.com/ayusman/snoezelen/internal/detector"
	"github.com/ayusman/snoezelen/internal/recording"
	"github.com/ayusman/snoezelen/internal/remote"
	"github.com/ayusman/snoezelen/internal/settings"
	"github.com/ayusman/snoezelen/internal/store"
)

type fakeEngine struct {
	mu     sync.Mutex
	holder *settings.Holder
	output *image.RGBA
}

func newFakeEngine() *fakeEngine {
	out := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := range out.Pix {
		out.Pix[i] = 200
	}
	return &fakeEngine{holder: settings.NewHolder(settings.Default()), output: out}
}

func (f *fakeEngine) Settings() *settings.Holder { return f.holder }

func (f *fakeEngine) UpdateSetting(key string, value json.RawMessage) (settings.Settings, error) {
	return f.holder.Update(func(s settings.Settings) (settings.Settings, error) {
		return s.Apply(key, value)
	})
}

func (f *fakeEngine) UpdateSettings(values map[string]json.RawMessage) (settings.Settings, error) {
	return f.holder.Update(func(s settings.Settings) (settings.Settings, error) {
		return s.ApplyAll(values)
	})
}

func (f *fakeEngine) StartRecording(string, bool) (string, error) { return "rec", nil }
func (f *fakeEngine) StopRecording() (recording.Session, error) {
	return recording.Session{ID: "rec"}, nil
}
func (f *fakeEngine) SaveRecording(string) (app.SaveResult, error) {
	return app.SaveResult{ID: "rec", Samples: 1}, nil
}

func (f *fakeEngine) Output() *image.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.output
}

func (f *fakeEngine) Preview() *image.RGBA { return f.Output() }

func (f *fakeEngine) Status() app.Status {
	return app.Status{State: app.StateRunning, Particles: 7, Active: true}
}

func (f *fakeEngine) Keypoints() []detector.Keypoint {
	return []detector.Keypoint{{X: 10, Y: 20, Score: 0.9, Name: detector.LeftWrist}}
}

func TestAPI_StatusAndSettings(t *testing.T) {
	eng := newFakeEngine()
	srv := New(Config{Engine: eng})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	resp, err := client.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status error = %v", err)
	}
	var st app.Status
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if st.State != app.StateRunning || st.Particles != 7 {
		t.Errorf("status = %+v", st)
	}

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings/effect", strings.NewReader(`"bubbles"`))
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("PUT /api/settings/effect error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := eng.holder.Load().Effect.String(); got != "bubbles" {
		t.Errorf("effect = %s, want bubbles", got)
	}

	resp, _ = client.Post(ts.URL+"/api/recording/start", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("POST /api/recording/start status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
}

func TestAPI_SessionsRequireStore(t *testing.T) {
	srv := New(Config{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	srv = New(Config{Store: s})
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAPI_RemoteChannel(t *testing.T) {
	hub := remote.NewHub()
	defer hub.Close()
	srv := New(Config{Hub: hub})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/remote"

	a, err := remote.Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer a.Close()
	b, err := remote.Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer b.Close()

	for hub.Peers() != 2 {
		if ctx.Err() != nil {
			t.Fatal("peers did not connect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.Send(remote.Message{Type: remote.TypeRecordingStop})
	select {
	case m := <-b.Messages():
		if m.Type != remote.TypeRecordingStop {
			t.Errorf("b received %q", m.Type)
		}
	case <-ctx.Done():
		t.Fatal("message not relayed")
	}
}

func TestAPI_KeypointsFeed(t *testing.T) {
	srv := New(Config{Engine: newFakeEngine()})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/keypoints"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg keypointsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if len(msg.Keypoints) != 1 || msg.Keypoints[0].Name != detector.LeftWrist || !msg.Active {
		t.Errorf("message = %+v", msg)
	}
}

func TestAPI_Stream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stream test in short mode")
	}

	eng := newFakeEngine()
	srv := New(Config{Engine: eng})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %s", ct)
	}

	r := bufio.NewReader(resp.Body)
	boundary, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(boundary) != "--frame" {
		t.Fatalf("first line = %q, %v", boundary, err)
	}
	part, _ := r.ReadString('\n')
	if strings.TrimSpace(part) != "Content-Type: image/jpeg" {
		t.Errorf("part header = %q", part)
	}
}

func TestEncodeJPEG(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv test in short mode")
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	buf, err := encodeJPEG(img)
	if err != nil {
		t.Fatalf("encodeJPEG() error = %v", err)
	}
	if len(buf) < 4 || buf[0] != 0xFF || buf[1] != 0xD8 {
		t.Error("output is not a JPEG")
	}
}
