package livereload

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutriserve/logger"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recordingBroadcaster) Broadcast(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func testLogger() *logger.Logger {
	return logger.New(&bytes.Buffer{}, logrus.DebugLevel)
}

func TestWatcherScanDetectsChanges(t *testing.T) {
	root := t.TempDir()
	page := filepath.Join(root, "app.js")
	require.NoError(t, os.WriteFile(page, []byte("v1"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	rec := &recordingBroadcaster{}
	w := NewWatcher(root, time.Hour, rec, testLogger())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	changed, err := w.Scan()
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.Equal(t, 0, rec.count())

	// Size change, new file, and a file inside a dot directory (ignored).
	require.NoError(t, os.WriteFile(page, []byte("version two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "style.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0o644))

	changed, err = w.Scan()
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, Message{Type: "reload", Changed: 2}, rec.msgs[0])

	require.NoError(t, os.Remove(page))
	changed, err = w.Scan()
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
}

func TestWatcherPollsUntilStopped(t *testing.T) {
	root := t.TempDir()
	rec := &recordingBroadcaster{}
	w := NewWatcher(root, 10*time.Millisecond, rec, testLogger())
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html></html>"), 0o644))
	require.Eventually(t, func() bool { return rec.count() > 0 }, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()
}

func TestWatcherStartFailsOnMissingRoot(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "gone"), time.Second, &recordingBroadcaster{}, testLogger())
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcherScanFailsWhenRootRemoved(t *testing.T) {
	root := filepath.Join(t.TempDir(), "site")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html></html>"), 0o644))

	rec := &recordingBroadcaster{}
	w := NewWatcher(root, time.Hour, rec, testLogger())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.RemoveAll(root))
	_, err := w.Scan()
	assert.Error(t, err)
	assert.Equal(t, 0, rec.count())
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, 101, resp.StatusCode)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(Message{Type: "reload", Changed: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, Message{Type: "reload", Changed: 3}, got)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	// The close frame surfaces as a read error on the browser side.
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubDropsClientOnDisconnect(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubServesClientScript(t *testing.T) {
	hub := NewHub(testLogger())
	defer hub.Close()

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__livereload.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/javascript; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `"/__livereload"`)
	assert.Contains(t, body, "location.reload()")
	assert.NotContains(t, body, "%!")
	assert.Equal(t, 0, hub.Clients())
}
