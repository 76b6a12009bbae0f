package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/store"
	"github.com/soyeahso/triage/internal/tenant"
	"github.com/soyeahso/triage/internal/triage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig() config.GatewayConfig {
	cfg := config.Defaults().Gateway
	cfg.RateLimit = config.RateLimitConfig{}
	return cfg
}

func testService(t *testing.T, st store.Store, opts ...triage.Option) *triage.Service {
	t.Helper()
	if st == nil {
		mem := store.NewMemoryStore(store.Options{}, testLog())
		t.Cleanup(func() { mem.Close() })
		st = mem
	}
	return triage.NewService(st, tenant.Default(), testLog(), opts...)
}

func testServer(t *testing.T, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	return testServerWith(t, testGatewayConfig(), testService(t, nil), opts...)
}

func testServerWith(t *testing.T, cfg config.GatewayConfig, svc *triage.Service, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg, svc, testLog(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

// connectWS dials /ws and completes the connect handshake.
func connectWS(t *testing.T, ts *httptest.Server, info ClientInfo) (*websocket.Conn, HelloOK) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	req, err := NewRequest("connect-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      info,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, FrameTypeResponse, hello.Type)
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK, "connect rejected: %+v", hello.Error)

	var payload HelloOK
	require.NoError(t, json.Unmarshal(hello.Payload, &payload))
	return conn, payload
}

// call sends an RPC request and returns its response, collecting any events
// that arrive first.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) (Frame, []Frame) {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var events []Frame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeEvent {
			events = append(events, f)
			continue
		}
		require.Equal(t, id, f.ID)
		return f, events
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "dev", health.Version.Version)
	assert.Equal(t, 0, health.Clients)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "/nonexistent", body["path"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `triage_http_requests_total{method="GET",route="/health",status="200"}`)
	assert.Contains(t, string(body), "triage_ws_clients")
}

func TestWebSocketHandshake(t *testing.T) {
	srv, ts := testServer(t)

	_, hello := connectWS(t, ts, ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux"})
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, []string{
		"chat.send", "email.ingest", "email.pending", "email.resolve",
		"health", "session.delete", "session.history",
	}, hello.Features.Methods)
	assert.Equal(t, serverEvents, hello.Features.Events)
	assert.Equal(t, triage.MaxMessageLen, hello.Policy.MaxMessageLength)
	assert.Equal(t, 15000, hello.Policy.RequestTimeoutMs)

	assert.Eventually(t, func() bool { return srv.clients.Count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHandshakeRejectsNonConnect(t *testing.T) {
	_, ts := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	req, _ := NewRequest("req-1", "health", nil)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "protocol_error", resp.Error.Code)
}

func TestWebSocketHandshakeProtocolMismatch(t *testing.T) {
	_, ts := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	req, _ := NewRequest("req-1", "connect", ConnectParams{MinProtocol: 2, MaxProtocol: 3})
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "protocol_mismatch", resp.Error.Code)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	_, ts := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketRPCHealth(t *testing.T) {
	_, ts := testServer(t)
	conn, _ := connectWS(t, ts, ClientInfo{ID: "c"})

	resp, _ := call(t, conn, "req-2", "health", nil)
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
}

func TestWebSocketRPCUnknownMethod(t *testing.T) {
	_, ts := testServer(t)
	conn, _ := connectWS(t, ts, ClientInfo{ID: "c"})

	resp, _ := call(t, conn, "req-6", "nonexistent.method", nil)
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

func TestWebSocketChatDialogBroadcastsEscalation(t *testing.T) {
	hm := hooks.NewManager(testLog())
	svc := testService(t, nil, triage.WithHooks(hm))
	_, ts := testServerWith(t, testGatewayConfig(), svc, WithHooks(hm))

	conn, _ := connectWS(t, ts, ClientInfo{ID: "agent-ui", CompanyID: "ness_bank"})
	observer, _ := connectWS(t, ts, ClientInfo{ID: "observer"})

	sessionID := ""
	var last domain.ChatResult
	var events []Frame
	for i, msg := range []string{
		"my vpn is broken", "windows", "anyconnect", "can't connect at all",
		"619", "still failing", "still failing",
	} {
		resp, evs := call(t, conn, "chat-"+string(rune('a'+i)), "chat.send", map[string]string{
			"session_id": sessionID,
			"message":    msg,
		})
		require.NotNil(t, resp.OK)
		require.True(t, *resp.OK, "message %q: %+v", msg, resp.Error)
		require.NoError(t, json.Unmarshal(resp.Payload, &last))
		sessionID = last.SessionID
		events = append(events, evs...)
	}

	assert.True(t, last.Handoff)
	require.NotNil(t, last.Preview)
	assert.Equal(t, "BANK", last.Preview.Fields.Project.Key)

	require.Len(t, events, 1)
	assert.Equal(t, EventEscalated, events[0].Event)
	assert.Positive(t, events[0].Seq)

	observer.SetReadDeadline(time.Now().Add(5 * time.Second))
	var pushed Frame
	require.NoError(t, observer.ReadJSON(&pushed))
	assert.Equal(t, FrameTypeEvent, pushed.Type)
	assert.Equal(t, EventEscalated, pushed.Event)
}

func TestStalledWebSocketClientDoesNotBlockService(t *testing.T) {
	hm := hooks.NewManager(testLog())
	svc := testService(t, nil, triage.WithHooks(hm))
	_, ts := testServerWith(t, testGatewayConfig(), svc, WithHooks(hm))

	// Connected and subscribed to every tenant, but never reads again.
	connectWS(t, ts, ClientInfo{ID: "stalled"})

	done := make(chan error, 1)
	go func() {
		for i := range 4 * sendQueueSize {
			_, err := svc.IngestEmail(t.Context(), triage.EmailInput{
				MessageID: fmt.Sprintf("<stall-%d@corp.example>", i),
				From:      "alice@corp.example",
				To:        "support+bank@helpdesk.example",
				Subject:   "VPN down",
				Body:      "AnyConnect error 809 on windows",
			})
			if err != nil {
				done <- err
				return
			}
		}
		_, err := svc.Chat(t.Context(), triage.ChatInput{Message: "my vpn is broken", CompanyID: "ness_bank"})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service blocked on a stalled websocket client")
	}
}

func TestWebSocketRPCValidation(t *testing.T) {
	_, ts := testServer(t)
	conn, _ := connectWS(t, ts, ClientInfo{ID: "c"})

	resp, _ := call(t, conn, "req-1", "chat.send", map[string]string{"message": ""})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)

	resp, _ = call(t, conn, "req-2", "email.resolve", map[string]string{"message_id": "<x@y>"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)

	resp, _ = call(t, conn, "req-3", "session.history", map[string]string{"session_id": "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "session_not_found", resp.Error.Code)
	assert.False(t, resp.Error.Retryable)
}

func TestWebSocketEmailRPC(t *testing.T) {
	_, ts := testServer(t)
	conn, _ := connectWS(t, ts, ClientInfo{ID: "c"})

	resp, _ := call(t, conn, "req-1", "email.ingest", map[string]string{
		"message_id": "<ws-1@corp.example>",
		"from_email": "alice@corp.example",
		"to_email":   "support@helpdesk.example",
		"subject":    "VPN down",
		"body":       "AnyConnect error 809",
	})
	require.True(t, *resp.OK)
	var res domain.EmailResult
	require.NoError(t, json.Unmarshal(resp.Payload, &res))
	assert.Equal(t, domain.EmailPendingTenant, res.Status)

	resp, _ = call(t, conn, "req-2", "email.pending", nil)
	require.True(t, *resp.OK)
	var pending pendingEmailsResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &pending))
	assert.Equal(t, []string{"<ws-1@corp.example>"}, pending.MessageIDs)

	resp, _ = call(t, conn, "req-3", "email.resolve", map[string]string{
		"message_id": "<ws-1@corp.example>",
		"company_id": "ness_auto",
	})
	require.True(t, *resp.OK)
	require.NoError(t, json.Unmarshal(resp.Payload, &res))
	assert.Equal(t, domain.EmailProcessed, res.Status)
	assert.Equal(t, "ness_auto", res.TenantID)
}

func TestWebSocketSessionRPC(t *testing.T) {
	_, ts := testServer(t)
	conn, _ := connectWS(t, ts, ClientInfo{ID: "c"})

	resp, _ := call(t, conn, "req-1", "chat.send", map[string]string{"session_id": "s-ws", "message": "I forgot my password"})
	require.True(t, *resp.OK)

	resp, _ = call(t, conn, "req-2", "session.history", map[string]string{"session_id": "s-ws"})
	require.True(t, *resp.OK)
	var hist triage.SessionHistory
	require.NoError(t, json.Unmarshal(resp.Payload, &hist))
	assert.Equal(t, 2, hist.MessageCount)

	resp, _ = call(t, conn, "req-3", "session.delete", map[string]string{"session_id": "s-ws"})
	require.True(t, *resp.OK)
	var del deleteSessionResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &del))
	assert.Equal(t, deleteSessionResponse{Status: "deleted", SessionID: "s-ws"}, del)
}

func TestServerStart(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.Port = 0
	cfg.Bind = "loopback"

	hm := hooks.NewManager(testLog())
	var events []string
	record := func(_ context.Context, p hooks.Payload) error {
		events = append(events, p.Event)
		return nil
	}
	hm.On(hooks.EventGatewayStart, "test", record)
	hm.On(hooks.EventGatewayStop, "test", record)

	srv := New(cfg, testService(t, nil), testLog(), WithHooks(hm))

	assert.Empty(t, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, strings.HasPrefix(srv.Addr(), "127.0.0.1:"))

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.Equal(t, []string{hooks.EventGatewayStart, hooks.EventGatewayStop}, events)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		bind string
		port int
		host string
		want string
	}{
		{"loopback", "loopback", 8080, "", "127.0.0.1:8080"},
		{"lan", "lan", 9999, "", "0.0.0.0:9999"},
		{"auto", "auto", 8080, "", "0.0.0.0:8080"},
		{"custom_default", "custom", 3000, "", "0.0.0.0:3000"},
		{"custom_host", "custom", 3000, "10.0.0.1", "10.0.0.1:3000"},
		{"custom_ipv6", "custom", 3000, "::1", "[::1]:3000"},
		{"unknown_fallback", "whatever", 5000, "", "127.0.0.1:5000"},
		{"empty_fallback", "", 5000, "", "127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GatewayConfig{Bind: tt.bind, Port: tt.port, CustomBindHost: tt.host}
			assert.Equal(t, tt.want, resolveBindAddr(cfg))
		})
	}
}
