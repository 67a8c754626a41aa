package main

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer lets the test read stdout while run is still writing to it
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var servingLine = regexp.MustCompile(`Serving NutriConsult Pro at http://localhost:(\d+)`)

func TestRunServesAndStopsOnInterrupt(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>ok</html>"), 0o644))

	var stdout, stderr syncBuffer
	exit := make(chan int, 1)
	go func() {
		exit <- run([]string{"-host", "127.0.0.1", "-port", "0", "-dir", root}, &stdout, &stderr)
	}()

	var port string
	require.Eventually(t, func() bool {
		m := servingLine.FindStringSubmatch(stdout.String())
		if m == nil {
			return false
		}
		port = m[1]
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, stdout.String(), "Press Ctrl+C to stop.")

	resp, err := http.Get("http://127.0.0.1:" + port + "/index.html")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case code := <-exit:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit within 2s of SIGINT")
	}
	assert.Contains(t, stdout.String(), "Server stopped.")
}

func TestRunFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	var stdout, stderr syncBuffer
	code := run([]string{"-host", "127.0.0.1", "-port", strconv.Itoa(port), "-dir", t.TempDir()}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "cannot listen on")
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	var stdout, stderr syncBuffer
	code := run([]string{"-dir", filepath.Join(t.TempDir(), "absent")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid configuration")

	code = run([]string{"-port", "not-a-number"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Empty(t, stdout.String())
}
