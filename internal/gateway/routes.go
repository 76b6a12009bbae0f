package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/soyeahso/triage/internal/metrics"
	"github.com/soyeahso/triage/internal/triage"
)

// Handler builds the gateway's HTTP handler: the REST API under /api, the
// health and metrics endpoints, and the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestIDHeader)
	r.Use(loggingMiddleware(s.log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.ControlUI.AllowedOrigins))

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimitMiddleware(s.limiter, s.log))
		if d := s.cfg.RequestTimeout(); d > 0 {
			r.Use(chiMiddleware.Timeout(d))
		}
		r.Post("/chat", s.handleChat)
		r.Post("/email/ingest", s.handleEmailIngest)
		r.Post("/email/resolve", s.handleEmailResolve)
		r.Get("/email/pending", s.handleEmailPending)
		r.Get("/sessions/{id}", s.handleSessionHistory)
		r.Delete("/sessions/{id}", s.handleSessionDelete)
	})
	return r
}

// registerRPCHandlers sets up the WebSocket RPC methods. They mirror the
// REST API one to one.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", func(rc *RequestContext) {
		rc.Respond(s.health())
	})
	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("email.ingest", s.rpcEmailIngest)
	s.Handle("email.resolve", s.rpcEmailResolve)
	s.Handle("email.pending", s.rpcEmailPending)
	s.Handle("session.history", s.rpcSessionHistory)
	s.Handle("session.delete", s.rpcSessionDelete)
}

// decodeParams unmarshals and validates RPC params, responding with an
// error frame on failure.
func decodeParams(rc *RequestContext, dst interface{ Validate() error }) bool {
	if err := rc.Params(dst); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return false
	}
	if err := dst.Validate(); err != nil {
		rc.RespondErrorShape(ErrorShape{
			Code:    "invalid_params",
			Message: "request failed validation",
			Details: validationIssues(err),
		})
		return false
	}
	return true
}

// respondServiceError converts a service error into an error frame.
func respondServiceError(rc *RequestContext, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("rpc failed")
		msg = "the request could not be completed, try again later"
	}
	rc.RespondErrorShape(ErrorShape{
		Code:      code,
		Message:   msg,
		Retryable: status >= http.StatusInternalServerError,
	})
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	var p chatRequest
	if !decodeParams(rc, &p) {
		return
	}
	res, err := s.svc.Chat(rc.Ctx, triage.ChatInput{
		SessionID:    p.SessionID,
		Message:      p.Message,
		CompanyID:    p.CompanyID,
		HeaderTenant: rc.Client.Info.CompanyID,
	})
	if err != nil {
		respondServiceError(rc, err)
		return
	}
	rc.Respond(res)
}

func (s *Server) rpcEmailIngest(rc *RequestContext) {
	var p emailIngestRequest
	if !decodeParams(rc, &p) {
		return
	}
	res, err := s.svc.IngestEmail(rc.Ctx, triage.EmailInput{
		MessageID:    p.MessageID,
		From:         p.FromEmail,
		To:           p.ToEmail,
		Subject:      p.Subject,
		Body:         p.Body,
		CompanyID:    p.CompanyID,
		HeaderTenant: rc.Client.Info.CompanyID,
	})
	if err != nil {
		respondServiceError(rc, err)
		return
	}
	rc.Respond(res)
}

func (s *Server) rpcEmailResolve(rc *RequestContext) {
	var p emailResolveRequest
	if !decodeParams(rc, &p) {
		return
	}
	res, err := s.svc.ResolveEmail(rc.Ctx, p.MessageID, p.CompanyID)
	if err != nil {
		respondServiceError(rc, err)
		return
	}
	rc.Respond(res)
}

func (s *Server) rpcEmailPending(rc *RequestContext) {
	ids, err := s.svc.ListPendingEmails(rc.Ctx)
	if err != nil {
		respondServiceError(rc, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	rc.Respond(pendingEmailsResponse{MessageIDs: ids, Count: len(ids)})
}

func (s *Server) rpcSessionHistory(rc *RequestContext) {
	var p sessionRequest
	if !decodeParams(rc, &p) {
		return
	}
	hist, err := s.svc.History(rc.Ctx, p.SessionID)
	if err != nil {
		respondServiceError(rc, err)
		return
	}
	rc.Respond(hist)
}

func (s *Server) rpcSessionDelete(rc *RequestContext) {
	var p sessionRequest
	if !decodeParams(rc, &p) {
		return
	}
	if err := s.svc.DeleteSession(rc.Ctx, p.SessionID); err != nil {
		respondServiceError(rc, err)
		return
	}
	rc.Respond(deleteSessionResponse{Status: "deleted", SessionID: p.SessionID})
}
