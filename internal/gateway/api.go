package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/soyeahso/triage/internal/triage"
)

// TenantHeader carries the tenant id out of band. It wins over company_id in
// the body.
const TenantHeader = "X-Company-Id"

const maxBodyBytes = 1 << 20

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
}

// chatRequest is the body of POST /api/chat and the chat.send RPC.
type chatRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
	Message   string `json:"message" validate:"required,min=1,max=4000"`
	CompanyID string `json:"company_id" validate:"omitempty,max=128"`
}

func (r *chatRequest) Validate() error { return requestValidate.Struct(r) }

// emailIngestRequest is the body of POST /api/email/ingest.
type emailIngestRequest struct {
	MessageID string `json:"message_id" validate:"required,min=3,max=512"`
	FromEmail string `json:"from_email" validate:"omitempty,max=320"`
	ToEmail   string `json:"to_email" validate:"omitempty,max=320"`
	Subject   string `json:"subject" validate:"max=998"`
	Body      string `json:"body" validate:"max=200000"`
	CompanyID string `json:"company_id" validate:"omitempty,max=128"`
}

func (r *emailIngestRequest) Validate() error { return requestValidate.Struct(r) }

// emailResolveRequest is the body of POST /api/email/resolve.
type emailResolveRequest struct {
	MessageID string `json:"message_id" validate:"required,min=3,max=512"`
	CompanyID string `json:"company_id" validate:"required,max=128"`
}

func (r *emailResolveRequest) Validate() error { return requestValidate.Struct(r) }

// sessionRequest names a session for the session.* RPC methods.
type sessionRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
}

func (r *sessionRequest) Validate() error { return requestValidate.Struct(r) }

type pendingEmailsResponse struct {
	MessageIDs []string `json:"message_ids"`
	Count      int      `json:"count"`
}

type deleteSessionResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// fieldIssue describes one failed validation rule.
type fieldIssue struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// validationIssues flattens validator errors into field issues keyed by the
// JSON field name.
func validationIssues(err error) []fieldIssue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	issues := make([]fieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, fieldIssue{Field: jsonFieldName(fe.Field()), Rule: fe.Tag()})
	}
	return issues
}

var jsonFieldNames = map[string]string{
	"SessionID": "session_id",
	"Message":   "message",
	"CompanyID": "company_id",
	"MessageID": "message_id",
	"FromEmail": "from_email",
	"ToEmail":   "to_email",
	"Subject":   "subject",
	"Body":      "body",
}

func jsonFieldName(field string) string {
	if name, ok := jsonFieldNames[field]; ok {
		return name
	}
	return field
}

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, triage.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, triage.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, triage.ErrPendingNotFound):
		return http.StatusNotFound, "pending_not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "storage_error"
	}
}

// writeServiceError writes err as an API error. Internal failures are logged
// and reported without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		detail = "the request could not be completed, try again later"
	}
	writeError(w, status, code, detail)
}

// decodeAndValidate reads a JSON body into dst and runs its validation tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{ Validate() error }) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := dst.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:  "invalid_request",
			Detail: "request failed validation",
			Fields: validationIssues(err),
		})
		return false
	}
	return true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.svc.Chat(r.Context(), triage.ChatInput{
		SessionID:    req.SessionID,
		Message:      req.Message,
		CompanyID:    req.CompanyID,
		HeaderTenant: r.Header.Get(TenantHeader),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEmailIngest(w http.ResponseWriter, r *http.Request) {
	var req emailIngestRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.svc.IngestEmail(r.Context(), triage.EmailInput{
		MessageID:    req.MessageID,
		From:         req.FromEmail,
		To:           req.ToEmail,
		Subject:      req.Subject,
		Body:         req.Body,
		CompanyID:    req.CompanyID,
		HeaderTenant: r.Header.Get(TenantHeader),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEmailResolve(w http.ResponseWriter, r *http.Request) {
	var req emailResolveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.svc.ResolveEmail(r.Context(), req.MessageID, req.CompanyID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEmailPending(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.ListPendingEmails(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, pendingEmailsResponse{MessageIDs: ids, Count: len(ids)})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.DeleteSession(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteSessionResponse{Status: "deleted", SessionID: id})
}
