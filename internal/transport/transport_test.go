// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"errors"
	"net"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"genre/internal/classifier"
	applog "genre/internal/log"
	"genre/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() Result {
	return Result{
		ID:     "abc",
		Source: "blues.00000.wav",
		Label:  "blues",
		Probabilities: classifier.Distribution{
			{Label: "blues", P: 0.9},
			{Label: "jazz", P: 0.1},
		},
		Elapsed: 1500 * time.Millisecond,
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestLoggingTransport(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	prev := applog.GetLevel()
	applog.SetLevel(applog.LevelInfo)
	t.Cleanup(func() {
		applog.SetOutput(os.Stderr)
		applog.SetLevel(prev)
	})

	lt := NewLoggingTransport()
	require.NoError(t, lt.Send(testResult()))
	failed := testResult()
	failed.Error = "decode failed"
	require.NoError(t, lt.Send(&failed))
	require.NoError(t, lt.Close())

	out := buf.String()
	assert.Contains(t, out, "Transport: blues.00000.wav: blues (90.0%) in 1.5s")
	assert.Contains(t, out, "[WARN ] Transport: blues.00000.wav: decode failed")
}

type failing struct{ closed bool }

func (f *failing) Send(any) error { return errors.New("boom") }
func (f *failing) Close() error   { f.closed = true; return errors.New("close boom") }

func TestMulti(t *testing.T) {
	mock := &utils.MockTransport{}
	bad := &failing{}
	m := Multi{mock, bad, Discard{}}

	err := m.Send("hello")
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, []any{"hello"}, mock.Messages())

	err = m.Close()
	assert.ErrorContains(t, err, "close boom")
	assert.True(t, mock.Closed)
	assert.True(t, bad.closed)

	assert.NoError(t, Multi{}.Send(1))
}

func TestWebSocketBroadcast(t *testing.T) {
	wst := NewWebSocketTransport()
	srv := httptest.NewServer(wst)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { wst.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return wst.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, wst.Send(testResult()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "blues", got["label"])
	assert.Equal(t, "blues.00000.wav", got["source"])
	probs, ok := got["probabilities"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.9, probs["blues"], 1e-12)

	conn.Close()
	require.Eventually(t, func() bool { return wst.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketClosed(t *testing.T) {
	wst := NewWebSocketTransport()
	require.NoError(t, wst.Close())
	require.NoError(t, wst.Close(), "Close is idempotent")
	assert.Error(t, wst.Send("late"))
}

func TestWebSocketListen(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	wst := NewWebSocketTransport()
	defer wst.Close()
	assert.Error(t, wst.Listen(busy.Addr().String()), "busy port must fail to bind")

	ok := NewWebSocketTransport()
	require.NoError(t, ok.Listen("127.0.0.1:0"))
	require.NoError(t, ok.Close())
}
