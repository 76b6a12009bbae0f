// Package metrics exposes Prometheus counters for the triage workflow. The
// workflow counters are driven by hook events so the service itself stays
// free of instrumentation.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soyeahso/triage/internal/hooks"
)

var (
	// sessionsStarted counts new chat sessions.
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_sessions_started_total",
		Help: "Chat sessions created",
	})

	// sessionsDeleted counts explicitly deleted chat sessions.
	sessionsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_sessions_deleted_total",
		Help: "Chat sessions deleted",
	})

	// chatReplies counts chat replies by intent and handoff flag.
	chatReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_chat_replies_total",
		Help: "Chat replies by intent and handoff",
	}, []string{"intent", "handoff"})

	// escalations counts committed escalations.
	escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_escalations_total",
		Help: "Escalations committed by channel and tenant",
	}, []string{"channel", "tenant"})

	// escalationsPending counts escalations parked for a tenant id.
	escalationsPending = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_escalations_pending_total",
		Help: "Escalations parked waiting for a tenant id",
	}, []string{"channel"})

	// emails counts email intake outcomes.
	emails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_emails_total",
		Help: "Email intake results by status",
	}, []string{"status"})

	// httpRequests counts gateway requests by route pattern and status.
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "method", "status"})

	// httpDuration tracks gateway request latency.
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "triage_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"route"})

	// wsClients tracks connected websocket clients.
	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "triage_ws_clients",
		Help: "Connected websocket clients",
	})

	// mailboxPolls counts IMAP poll cycles by result.
	mailboxPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_mailbox_polls_total",
		Help: "IMAP poll cycles by result",
	}, []string{"result"})
)

// Register subscribes the workflow counters to h.
func Register(h *hooks.Manager) {
	h.On(hooks.EventSessionStart, "metrics", func(_ context.Context, _ hooks.Payload) error {
		sessionsStarted.Inc()
		return nil
	})
	h.On(hooks.EventSessionEnd, "metrics", func(_ context.Context, _ hooks.Payload) error {
		sessionsDeleted.Inc()
		return nil
	})
	h.On(hooks.EventReplySent, "metrics", func(_ context.Context, p hooks.Payload) error {
		handoff, _ := p.Data["handoff"].(bool)
		chatReplies.WithLabelValues(str(p.Data, "intent"), strconv.FormatBool(handoff)).Inc()
		return nil
	})
	h.On(hooks.EventEscalated, "metrics", func(_ context.Context, p hooks.Payload) error {
		escalations.WithLabelValues(str(p.Data, "channel"), str(p.Data, "tenant")).Inc()
		return nil
	})
	h.On(hooks.EventEscalationPending, "metrics", func(_ context.Context, p hooks.Payload) error {
		escalationsPending.WithLabelValues(str(p.Data, "channel")).Inc()
		return nil
	})
	h.On(hooks.EventEmailProcessed, "metrics", func(_ context.Context, p hooks.Payload) error {
		emails.WithLabelValues("processed").Inc()
		escalations.WithLabelValues("email", str(p.Data, "tenant")).Inc()
		return nil
	})
	h.On(hooks.EventEmailPending, "metrics", func(_ context.Context, _ hooks.Payload) error {
		emails.WithLabelValues("pending_tenant").Inc()
		escalationsPending.WithLabelValues("email").Inc()
		return nil
	})
	h.On(hooks.EventEmailDuplicate, "metrics", func(_ context.Context, _ hooks.Payload) error {
		emails.WithLabelValues("duplicate_skipped").Inc()
		return nil
	})
}

// ObserveHTTP records one gateway request.
func ObserveHTTP(route, method string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// WSConnected adjusts the websocket client gauge by delta.
func WSConnected(delta int) {
	wsClients.Add(float64(delta))
}

// MailboxPoll records the outcome of one IMAP poll cycle.
func MailboxPoll(err error) {
	if err != nil {
		mailboxPolls.WithLabelValues("error").Inc()
		return
	}
	mailboxPolls.WithLabelValues("ok").Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func str(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok && s != "" {
		return s
	}
	return "unknown"
}
