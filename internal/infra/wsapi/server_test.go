package wsapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/domain/entity"
	"github.com/ysrdora/nextframe/internal/domain/port"
	"github.com/ysrdora/nextframe/internal/export"
	"github.com/ysrdora/nextframe/internal/media/mediatest"
)

var clip = mediatest.Media{Duration: 10, Width: 16, Height: 9}

type memStore struct {
	mu      sync.Mutex
	recs    []*entity.FrameRecord
	cutoffs []time.Time
}

func (m *memStore) Save(ctx context.Context, rec *entity.FrameRecord) error {
	return m.SaveBatch(ctx, []*entity.FrameRecord{rec})
}

func (m *memStore) SaveBatch(_ context.Context, recs []*entity.FrameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, recs...)
	return nil
}

func (m *memStore) List(_ context.Context, sessionID string) ([]*entity.FrameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.FrameRecord
	for i := len(m.recs) - 1; i >= 0; i-- {
		if m.recs[i].SessionID == sessionID {
			out = append(out, m.recs[i])
		}
	}
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	return m.DeleteMany(ctx, []uuid.UUID{id})
}

func (m *memStore) DeleteMany(_ context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.recs[:0]
	for _, r := range m.recs {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	m.recs = kept
	return nil
}

func (m *memStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 0, nil
}

type testEnv struct {
	server *Server
	http   *httptest.Server
	dir    string
}

func newTestEnv(t *testing.T, library map[string]mediatest.Media, store port.FrameStore) *testEnv {
	t.Helper()
	return newTestEnvWithFactory(t, mediatest.NewFactory(library, nil), store)
}

func newTestEnvWithFactory(t *testing.T, factory port.ElementFactory, store port.FrameStore) *testEnv {
	t.Helper()
	dir := t.TempDir()
	s := NewServer(Config{
		TempDir:       dir,
		LoadTimeout:   50 * time.Millisecond,
		SessionMaxAge: time.Hour,
	}, factory, store, zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return &testEnv{server: s, http: ts, dir: dir}
}

func anyClip() map[string]mediatest.Media {
	return map[string]mediatest.Media{mediatest.AnySource: clip}
}

type createdSession struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	State  map[string]any `json:"state"`
	Frames []frameView    `json:"frames"`
}

func (env *testEnv) upload(t *testing.T, filename string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("video", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake video bytes"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	resp, err := http.Post(env.http.URL+"/sessions", w.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (env *testEnv) open(t *testing.T) createdSession {
	t.Helper()
	resp := env.upload(t, "clip.mp4", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createdSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func (env *testEnv) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, env.http.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (env *testEnv) entry(t *testing.T, id string) *entry {
	t.Helper()
	e, ok := env.server.sessions.get(id)
	require.True(t, ok)
	return e
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp := env.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t, anyClip(), nil)

	created := env.open(t)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "clip.mp4", created.Name)
	assert.Equal(t, true, created.State["isLoaded"])
	assert.Equal(t, 10.0, created.State["duration"])
	assert.Equal(t, "paused", created.State["phase"])
	assert.Empty(t, created.Frames)
	assert.FileExists(t, env.entry(t, created.ID).videoPath)
}

func TestCreateSessionRejectsBadUploads(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t, anyClip(), nil)
		resp := env.upload(t, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		env := newTestEnv(t, anyClip(), nil)
		env.server.cfg.MaxUploadBytes = 16
		resp := env.upload(t, "clip.mp4", map[string]string{"padding": strings.Repeat("x", 4096)})
		assert.NotEqual(t, http.StatusCreated, resp.StatusCode)
		assert.Zero(t, env.server.sessions.len())
	})

	t.Run("unloadable video", func(t *testing.T) {
		env := newTestEnv(t, nil, nil)
		resp := env.upload(t, "clip.mp4", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Zero(t, env.server.sessions.len())

		leftovers, err := os.ReadDir(env.dir)
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})
}

func TestGetAndDeleteSession(t *testing.T) {
	env := newTestEnv(t, anyClip(), nil)
	created := env.open(t)
	videoPath := env.entry(t, created.ID).videoPath

	resp := env.do(t, http.MethodGet, "/sessions/"+created.ID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/sessions/"+created.ID)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NoFileExists(t, videoPath)

	resp = env.do(t, http.MethodGet, "/sessions/"+created.ID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/sessions/"+created.ID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportEndpoints(t *testing.T) {
	env := newTestEnv(t, anyClip(), nil)
	created := env.open(t)

	resp := env.do(t, http.MethodGet, "/sessions/"+created.ID+"/export.zip")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.entry(t, created.ID).session.BatchCapture(context.Background())

	resp = env.do(t, http.MethodGet, "/sessions/"+created.ID+"/export.zip")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "clip_frames.zip")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"REFRAME_START.png", "REFRAME_END.png", export.ManifestName}, names)

	resp = env.do(t, http.MethodGet, "/sessions/"+created.ID+"/contact-sheet.html?download=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "clip_contact_sheet.html")
	sheet, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(sheet), "data:image/png;base64,")
}

func TestFrameEndpoints(t *testing.T) {
	env := newTestEnv(t, anyClip(), nil)
	created := env.open(t)
	sess := env.entry(t, created.ID).session
	items := sess.BatchCapture(context.Background())
	require.Len(t, items, 2)

	resp := env.do(t, http.MethodDelete, "/sessions/"+created.ID+"/frames/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/sessions/"+created.ID+"/frames/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/sessions/"+created.ID+"/frames/"+items[0].ID.String())
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, sess.Gallery().Len())

	resp = env.do(t, http.MethodDelete, "/sessions/"+created.ID+"/frames")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, sess.Gallery().Len())
}

func TestResumeSession(t *testing.T) {
	store := &memStore{}
	env := newTestEnv(t, anyClip(), store)

	id := uuid.NewString()
	frame := entity.CapturedFrame{DataURL: "data:image/png;base64,AA==", Filename: "REFRAME_000112.png", Timestamp: 1.5}
	require.NoError(t, store.SaveBatch(context.Background(), []*entity.FrameRecord{
		entity.NewFrameRecord(id, "clip.mp4", frame),
		entity.NewFrameRecord(uuid.NewString(), "other.mp4", frame),
	}))

	resp := env.upload(t, "clip.mp4", map[string]string{"session_id": id})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createdSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, id, created.ID)
	require.Len(t, created.Frames, 1)
	assert.Equal(t, "REFRAME_000112.png", created.Frames[0].Filename)
	assert.Equal(t, "00:01:12", created.Frames[0].Timecode)

	resp = env.upload(t, "clip.mp4", map[string]string{"session_id": id})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.upload(t, "clip.mp4", map[string]string{"session_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCleanupExpiresSessionsAndFrames(t *testing.T) {
	store := &memStore{}
	env := newTestEnv(t, anyClip(), store)
	env.open(t)
	env.open(t)

	now := time.Now()
	env.server.cleanup(context.Background(), now)
	assert.Equal(t, 2, env.server.sessions.len())

	env.server.cleanup(context.Background(), now.Add(2*time.Hour))
	assert.Zero(t, env.server.sessions.len())
	require.Len(t, store.cutoffs, 2)
	assert.WithinDuration(t, now.Add(time.Hour), store.cutoffs[1], time.Millisecond)
}

func TestRunCleanupStopsWithContext(t *testing.T) {
	env := newTestEnv(t, anyClip(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.server.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return")
	}
}
