package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	proxygraph "boardroom/contexts/meeting-governance/proxy-graph"
	proxyerrors "boardroom/contexts/meeting-governance/proxy-graph/domain/errors"
	proxyhttp "boardroom/contexts/meeting-governance/proxy-graph/transport/http"
	resolutionregistry "boardroom/contexts/meeting-governance/resolution-registry"
	resolutionerrors "boardroom/contexts/meeting-governance/resolution-registry/domain/errors"
	resolutionhttp "boardroom/contexts/meeting-governance/resolution-registry/transport/http"
	votingsession "boardroom/contexts/meeting-governance/voting-session"
	votingerrors "boardroom/contexts/meeting-governance/voting-session/domain/errors"
	votinghttp "boardroom/contexts/meeting-governance/voting-session/transport/http"
	workflowengine "boardroom/contexts/meeting-governance/workflow-engine"
	workflowerrors "boardroom/contexts/meeting-governance/workflow-engine/domain/errors"
	workflowhttp "boardroom/contexts/meeting-governance/workflow-engine/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "boardroom/internal/platform/httpserver/docs"
)

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	addr        string
	workflow    workflowengine.Module
	proxies     proxygraph.Module
	voting      votingsession.Module
	resolutions resolutionregistry.Module
}

func New(
	workflow workflowengine.Module,
	proxies proxygraph.Module,
	voting votingsession.Module,
	resolutions resolutionregistry.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		addr:        addr,
		workflow:    workflow,
		proxies:     proxies,
		voting:      voting,
		resolutions: resolutions,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the mux for httptest-based route tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/meetings", s.handleOpenMeeting)
	s.mux.HandleFunc("GET /v1/meetings/{instance_id}", s.handleGetInstance)
	s.mux.HandleFunc("POST /v1/meetings/{instance_id}/advance", s.handleAdvance)
	s.mux.HandleFunc("POST /v1/meetings/{instance_id}/quorum", s.handleRecordQuorum)
	s.mux.HandleFunc("POST /v1/meetings/{instance_id}/fail", s.handleFail)
	s.mux.HandleFunc("POST /v1/meetings/{instance_id}/recover", s.handleRecover)
	s.mux.HandleFunc("GET /v1/meetings/{instance_id}/transitions", s.handleListTransitions)

	s.mux.HandleFunc("POST /v1/proxies", s.handleGrantProxy)
	s.mux.HandleFunc("POST /v1/proxies/{grant_id}/revoke", s.handleRevokeProxy)
	s.mux.HandleFunc("GET /v1/proxies/resolve", s.handleResolveProxy)

	s.mux.HandleFunc("POST /v1/sessions", s.handleOpenSession)
	s.mux.HandleFunc("POST /v1/sessions/{session_id}/ballots", s.handleCastBallot)
	s.mux.HandleFunc("GET /v1/sessions/{session_id}/ballots", s.handleListBallots)
	s.mux.HandleFunc("POST /v1/sessions/{session_id}/close", s.handleCloseSession)
	s.mux.HandleFunc("POST /v1/sessions/{session_id}/cancel", s.handleCancelSession)
	s.mux.HandleFunc("GET /v1/sessions/{session_id}/results", s.handleSessionResults)

	s.mux.HandleFunc("POST /v1/resolutions", s.handlePropose)
	s.mux.HandleFunc("GET /v1/resolutions", s.handleListResolutions)
	s.mux.HandleFunc("GET /v1/resolutions/{resolution_id}", s.handleGetResolution)
	s.mux.HandleFunc("POST /v1/resolutions/{resolution_id}/withdraw", s.handleWithdrawResolution)
	s.mux.HandleFunc("POST /v1/resolutions/{resolution_id}/table", s.handleTableResolution)
	s.mux.HandleFunc("POST /v1/resolutions/{resolution_id}/supersede", s.handleSupersedeResolution)
}

func (s *Server) handleOpenMeeting(w http.ResponseWriter, r *http.Request) {
	var req workflowhttp.OpenMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWorkflowError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.workflow.Handler.OpenMeetingHandler(r.Context(), req)
	if err != nil {
		writeWorkflowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	resp, err := s.workflow.Handler.GetInstanceHandler(r.Context(), r.PathValue("instance_id"))
	if err != nil {
		writeWorkflowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req workflowhttp.AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWorkflowError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if req.RequestedBy == "" {
		req.RequestedBy = r.Header.Get("X-User-Id")
	}
	resp, err := s.workflow.Handler.AdvanceHandler(r.Context(), r.PathValue("instance_id"), req)
	if err != nil {
		writeWorkflowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordQuorum(w http.ResponseWriter, r *http.Request) {
	var req workflowhttp.RecordQuorumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWorkflowError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.workflow.Handler.RecordQuorumHandler(r.Context(), r.PathValue("instance_id"), req)
	if err != nil {
		writeWorkflowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	var req workflowhttp.FailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWorkflowError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.workflow.Handler.FailHandler(r.Context(), r.PathValue("instance_id"), req)
	if err != nil {
		writeWorkflowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req workflowhttp.RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWorkflowError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.workflow.Handler.RecoverHandler(r.Context(), r.PathValue("instance_id"), req)
	if err != nil {
		writeWorkflowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	resp, err := s.workflow.Handler.ListTransitionsHandler(r.Context(), r.PathValue("instance_id"))
	if err != nil {
		writeWorkflowDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGrantProxy(w http.ResponseWriter, r *http.Request) {
	var req proxyhttp.GrantProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProxyError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.proxies.Handler.GrantProxyHandler(r.Context(), r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		writeProxyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevokeProxy(w http.ResponseWriter, r *http.Request) {
	var req proxyhttp.RevokeProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProxyError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	err := s.proxies.Handler.RevokeProxyHandler(
		r.Context(),
		r.PathValue("grant_id"),
		r.Header.Get("X-User-Id"),
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeProxyDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResolveProxy(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	meetingID := query.Get("meeting_id")
	grantorID := query.Get("grantor_id")
	if meetingID == "" || grantorID == "" {
		writeProxyError(w, http.StatusBadRequest, "missing_query", "meeting_id and grantor_id are required")
		return
	}
	resp, err := s.proxies.Handler.ResolveHolderHandler(r.Context(), meetingID, grantorID)
	if err != nil {
		writeProxyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.voting.Handler.OpenSessionHandler(r.Context(), req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastBallot(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.CastBallotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if req.VoterID == "" {
		req.VoterID = r.Header.Get("X-User-Id")
	}
	resp, err := s.voting.Handler.CastBallotHandler(
		r.Context(),
		r.PathValue("session_id"),
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListBallots(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ListBallotsHandler(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.CloseSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.voting.Handler.CloseSessionHandler(r.Context(), r.PathValue("session_id"), req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.CancelSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if err := s.voting.Handler.CancelSessionHandler(r.Context(), r.PathValue("session_id"), req); err != nil {
		writeVotingDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionResults(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ResultsHandler(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req resolutionhttp.ProposeResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResolutionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.resolutions.Handler.ProposeHandler(r.Context(), req)
	if err != nil {
		writeResolutionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListResolutions(w http.ResponseWriter, r *http.Request) {
	meetingID := r.URL.Query().Get("meeting_id")
	if meetingID == "" {
		writeResolutionError(w, http.StatusBadRequest, "missing_query", "meeting_id is required")
		return
	}
	resp, err := s.resolutions.Handler.ListByMeetingHandler(r.Context(), meetingID)
	if err != nil {
		writeResolutionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request) {
	resp, err := s.resolutions.Handler.GetResolutionHandler(r.Context(), r.PathValue("resolution_id"))
	if err != nil {
		writeResolutionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWithdrawResolution(w http.ResponseWriter, r *http.Request) {
	var req resolutionhttp.WithdrawResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResolutionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.resolutions.Handler.WithdrawHandler(r.Context(), r.PathValue("resolution_id"), req)
	if err != nil {
		writeResolutionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTableResolution(w http.ResponseWriter, r *http.Request) {
	var req resolutionhttp.TableResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResolutionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.resolutions.Handler.TableHandler(r.Context(), r.PathValue("resolution_id"), req)
	if err != nil {
		writeResolutionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSupersedeResolution(w http.ResponseWriter, r *http.Request) {
	var req resolutionhttp.SupersedeResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResolutionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.resolutions.Handler.SupersedeHandler(r.Context(), r.PathValue("resolution_id"), req)
	if err != nil {
		writeResolutionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeWorkflowDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflowerrors.ErrInvalidWorkflowInput):
		writeWorkflowError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, workflowerrors.ErrInstanceNotFound):
		writeWorkflowError(w, http.StatusNotFound, "instance_not_found", err.Error())
	case errors.Is(err, workflowerrors.ErrNotController):
		writeWorkflowError(w, http.StatusForbidden, "not_controller", err.Error())
	case errors.Is(err, workflowerrors.ErrQuorumNotMet),
		errors.Is(err, workflowerrors.ErrQuorumNotRecorded):
		writeWorkflowError(w, http.StatusConflict, "quorum_not_met", err.Error())
	case errors.Is(err, workflowerrors.ErrStageLocked):
		writeWorkflowError(w, http.StatusConflict, "stage_locked", err.Error())
	case errors.Is(err, workflowerrors.ErrStaleInstance):
		writeWorkflowError(w, http.StatusConflict, "stale_instance", err.Error())
	case errors.Is(err, workflowerrors.ErrInvalidStage),
		errors.Is(err, workflowerrors.ErrTerminalState),
		errors.Is(err, workflowerrors.ErrNotFailed),
		errors.Is(err, workflowerrors.ErrRecoveryExhausted),
		errors.Is(err, workflowerrors.ErrSessionMismatch),
		errors.Is(err, workflowerrors.ErrConflict):
		writeWorkflowError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeWorkflowError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeProxyDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, proxyerrors.ErrInvalidGrantInput):
		writeProxyError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, proxyerrors.ErrIdempotencyKeyRequired):
		writeProxyError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	case errors.Is(err, proxyerrors.ErrGrantNotFound):
		writeProxyError(w, http.StatusNotFound, "grant_not_found", err.Error())
	case errors.Is(err, proxyerrors.ErrSelfProxy),
		errors.Is(err, proxyerrors.ErrChainTooDeep),
		errors.Is(err, proxyerrors.ErrCycleDetected),
		errors.Is(err, proxyerrors.ErrSubDelegationForbidden):
		writeProxyError(w, http.StatusUnprocessableEntity, "invalid_delegation", err.Error())
	case errors.Is(err, proxyerrors.ErrParentGrantNotActive),
		errors.Is(err, proxyerrors.ErrConflict),
		errors.Is(err, proxyerrors.ErrIdempotencyConflict):
		writeProxyError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeProxyError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeVotingDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, votingerrors.ErrInvalidSessionInput):
		writeVotingError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, votingerrors.ErrIdempotencyKeyRequired):
		writeVotingError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	case errors.Is(err, votingerrors.ErrSessionNotFound),
		errors.Is(err, votingerrors.ErrItemNotFound):
		writeVotingError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, votingerrors.ErrVoterNotEligible),
		errors.Is(err, votingerrors.ErrVoteDelegated),
		errors.Is(err, votingerrors.ErrBallotsSealed):
		writeVotingError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, votingerrors.ErrDeadlinePassed):
		writeVotingError(w, http.StatusGone, "deadline_passed", err.Error())
	case errors.Is(err, votingerrors.ErrDuplicateBallot):
		writeVotingError(w, http.StatusConflict, "duplicate_ballot", err.Error())
	case errors.Is(err, votingerrors.ErrSessionNotOpen),
		errors.Is(err, votingerrors.ErrSessionSettled),
		errors.Is(err, votingerrors.ErrConflict),
		errors.Is(err, votingerrors.ErrIdempotencyConflict):
		writeVotingError(w, http.StatusConflict, "conflict", err.Error())
	// Workflow gate refusals surface through session opening.
	case errors.Is(err, workflowerrors.ErrInvalidStage),
		errors.Is(err, workflowerrors.ErrStageLocked),
		errors.Is(err, workflowerrors.ErrQuorumNotMet):
		writeVotingError(w, http.StatusConflict, "stage_unavailable", err.Error())
	case errors.Is(err, workflowerrors.ErrInstanceNotFound):
		writeVotingError(w, http.StatusNotFound, "instance_not_found", err.Error())
	case errors.Is(err, votingerrors.ErrTallyFailed):
		writeVotingError(w, http.StatusInternalServerError, "tally_failed", err.Error())
	default:
		writeVotingError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeResolutionDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resolutionerrors.ErrInvalidResolutionInput):
		writeResolutionError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, resolutionerrors.ErrResolutionNotFound):
		writeResolutionError(w, http.StatusNotFound, "resolution_not_found", err.Error())
	case errors.Is(err, resolutionerrors.ErrSecondRequired),
		errors.Is(err, resolutionerrors.ErrSelfSupersedeForbidden):
		writeResolutionError(w, http.StatusUnprocessableEntity, "invalid_motion", err.Error())
	case errors.Is(err, resolutionerrors.ErrResolutionSettled),
		errors.Is(err, resolutionerrors.ErrOutcomeAlreadyRecorded),
		errors.Is(err, resolutionerrors.ErrConflict):
		writeResolutionError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeResolutionError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeWorkflowError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, workflowhttp.ErrorResponse{Code: code, Message: message})
}

func writeProxyError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, proxyhttp.ErrorResponse{Code: code, Message: message})
}

func writeVotingError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, votinghttp.ErrorResponse{Code: code, Message: message})
}

func writeResolutionError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, resolutionhttp.ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
