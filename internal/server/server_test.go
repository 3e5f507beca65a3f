package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/keytune/internal/bulksync"
	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/retry"
	"github.com/muurk/keytune/internal/session"
	"github.com/muurk/keytune/internal/snapshot"
	"github.com/muurk/keytune/internal/transport/simulator"
)

type bridge struct {
	kb   *simulator.Keyboard
	sess *session.Session
	srv  *Server
	http *httptest.Server
}

func newBridge(t *testing.T, syncer Syncer) *bridge {
	t.Helper()
	kb := simulator.New(simulator.Options{KeyCount: 8})
	sess := session.New(kb, session.NewMemoryStore(kb.Info().StableID()), session.Options{
		AutoConnect:   retry.Fixed(2, 5*time.Millisecond),
		Reads:         retry.Fixed(2, 5*time.Millisecond),
		ProbeAttempts: 2,
		ProbeStep:     time.Millisecond,
		InitRetries:   1,
	})
	sess.Start()
	if syncer == nil {
		syncer = bulksync.New(sess, bulksync.Options{
			Throttle:   time.Millisecond,
			PhasePause: time.Millisecond,
			Fields:     retry.Fixed(1, 0),
		})
	}

	srv, err := New(&Config{Host: "127.0.0.1"}, sess, syncer)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
		_ = sess.Close()
		_ = kb.Close()
	})
	return &bridge{kb: kb, sess: sess, srv: srv, http: ts}
}

func (b *bridge) do(t *testing.T, method, path string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, b.http.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealth(t *testing.T) {
	b := newBridge(t, nil)
	resp, data := b.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, data)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "version")
}

func TestConnectAndStatus(t *testing.T) {
	b := newBridge(t, nil)

	_, data := b.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, "disconnected", decode[session.Status](t, data).StateName)

	resp, data := b.do(t, http.MethodPost, "/connect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	st := decode[session.Status](t, data)
	assert.Equal(t, "initialized", st.StateName)
	assert.True(t, st.Initialized)
	require.NotNil(t, st.Device)
	assert.Equal(t, "SIM0001", st.Device.Serial)

	resp, data = b.do(t, http.MethodPost, "/disconnect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "disconnected", decode[session.Status](t, data).StateName)
}

func TestConnectWithoutKeyboard(t *testing.T) {
	b := newBridge(t, nil)
	b.kb.Unplug()

	resp, data := b.do(t, http.MethodPost, "/connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, errs.KindNotDiscoverable.String(), decode[ErrorBody](t, data).Kind)
}

func TestExportImport(t *testing.T) {
	b := newBridge(t, nil)

	resp, data := b.do(t, http.MethodGet, "/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "no keyboard yet")

	b.do(t, http.MethodPost, "/connect", nil)
	b.kb.SetBinding(5, 1, 9)

	resp, data = b.do(t, http.MethodGet, "/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	snap, err := snapshot.Unmarshal(data)
	require.NoError(t, err)
	assert.Len(t, snap.Keyboards, 8)
	k, ok := snap.FindKey(5)
	require.True(t, ok)
	require.NotNil(t, k.CustomKeys.Fn1)

	resp, data = b.do(t, http.MethodPost, "/import", data)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	out := decode[ImportResponse](t, data)
	assert.Empty(t, out.Failures)
	assert.Equal(t, []string{"rateOfReturn"}, out.Skipped)
}

func TestImportRejectsBadBody(t *testing.T) {
	b := newBridge(t, nil)
	b.do(t, http.MethodPost, "/connect", nil)

	resp, data := b.do(t, http.MethodPost, "/import", []byte("not json"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errs.KindParse.String(), decode[ErrorBody](t, data).Kind)

	resp, _ = b.do(t, http.MethodPost, "/import", []byte(`{"system":{}}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type busySyncer struct{}

func (busySyncer) Export(context.Context) (*snapshot.Snapshot, *bulksync.Report, error) {
	return nil, nil, errs.NewBusyError("export")
}

func (busySyncer) Import(context.Context, *snapshot.Snapshot) (*bulksync.Report, error) {
	return nil, errs.NewBusyError("import")
}

func TestBusy(t *testing.T) {
	b := newBridge(t, busySyncer{})
	resp, data := b.do(t, http.MethodGet, "/export", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, errs.KindBusy.String(), decode[ErrorBody](t, data).Kind)
}

func TestMethodNotAllowed(t *testing.T) {
	b := newBridge(t, nil)
	resp, _ := b.do(t, http.MethodGet, "/connect", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func readStatus(t *testing.T, conn *websocket.Conn) session.Status {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "status", msg.Type)
	require.NotNil(t, msg.Status)
	return *msg.Status
}

func TestWebSocketFeed(t *testing.T) {
	b := newBridge(t, nil)
	url := "ws" + strings.TrimPrefix(b.http.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "disconnected", readStatus(t, conn).StateName, "latest status on connect")
	require.Eventually(t, func() bool { return b.srv.ActiveClients() == 1 }, time.Second, 5*time.Millisecond)

	_, err = b.sess.AutoConnect(context.Background())
	require.NoError(t, err)

	var seen []string
	for len(seen) == 0 || seen[len(seen)-1] != "initialized" {
		seen = append(seen, readStatus(t, conn).StateName)
	}
	assert.Equal(t, []string{"connecting", "connected", "initializing", "initialized"}, seen)

	b.kb.Unplug()
	assert.Equal(t, "disconnected", readStatus(t, conn).StateName)
}

func TestHubDropsClientsOnClose(t *testing.T) {
	b := newBridge(t, nil)
	url := "ws" + strings.TrimPrefix(b.http.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readStatus(t, conn)

	b.srv.hub.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "%v", err)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Zero(t, b.srv.ActiveClients())
}

func TestServeOnFreePort(t *testing.T) {
	kb := simulator.New(simulator.Options{KeyCount: 4})
	sess := session.New(kb, session.NewMemoryStore(""), session.DefaultOptions())
	t.Cleanup(func() {
		_ = sess.Close()
		_ = kb.Close()
	})

	srv, err := New(&Config{Host: "127.0.0.1", Port: 0}, sess, bulksync.New(sess, bulksync.Options{}))
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	require.NotZero(t, srv.Port())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", srv.Port()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.NewValidationError("x", "bad"), http.StatusBadRequest},
		{errs.NewParseError("x", "bad", nil), http.StatusBadRequest},
		{errs.NewBusyError("x"), http.StatusConflict},
		{errs.NewNoDeviceError("x"), http.StatusServiceUnavailable},
		{errs.NewTimeoutError("x", "slow"), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
