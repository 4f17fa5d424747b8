package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"disputeflow/auth"
	"disputeflow/contract"
	"disputeflow/host"
)

type ctxKey int

const (
	ctxKeyPartyID ctxKey = iota
	ctxKeyHandle
	ctxKeyRole
)

// authService is the slice of auth.Service the server depends on.
type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Party, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Identity, error)
}

// executorService is the slice of host.Executor the server depends on.
type executorService interface {
	Deploy(ctx context.Context, label string) (host.Instance, error)
	Inspect(ctx context.Context, instanceID string) (host.Instance, error)
	List(ctx context.Context, limit int) ([]host.Instance, error)
	Invoke(ctx context.Context, instanceID string, call contract.Call) (host.Instance, error)
}

// replayService is the slice of host.Replayer the server depends on.
type replayService interface {
	VerifyEquivalence(ctx context.Context, instanceID string, runs int) error
}

// Server wires HTTP routes to the domain services.
type Server struct {
	authService authService
	executor    executorService
	replayer    replayService
	metrics     http.Handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/instances", s.requireAuth(s.handleInstances))
	mux.HandleFunc("/api/instances/", s.requireAuth(s.handleInstanceDetail))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

type partyResponse struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

type instanceResponse struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	DisputeNo  int64  `json:"disputeNo"`
	Claimant   string `json:"claimant"`
	Respondent string `json:"respondent"`
	Resolver   string `json:"resolver"`
	Status     string `json:"status"`
	Verdict    string `json:"verdict"`
	CreatedAt  string `json:"createdAt"`
}

func toInstanceResponse(inst host.Instance) instanceResponse {
	return instanceResponse{
		ID:         inst.ID,
		Label:      inst.Label,
		DisputeNo:  inst.Record.DisputeNo,
		Claimant:   inst.Record.Claimant,
		Respondent: inst.Record.Respondent,
		Resolver:   inst.Record.Resolver,
		Status:     string(inst.Record.Status),
		Verdict:    inst.Record.Verdict,
		CreatedAt:  inst.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	party, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateParty):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, auth.ErrWeakPassword):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	writeJSON(w, http.StatusCreated, partyResponse{
		ID:        party.ID,
		Handle:    party.Handle,
		Email:     party.Email,
		Role:      string(party.Role),
		CreatedAt: party.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":  result.Token,
		"handle": result.Party.Handle,
		"role":   result.Party.Role,
	})
}

// requireAuth verifies the bearer token and stashes the caller identity into
// the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		ident, err := s.authService.VerifyToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyPartyID, ident.PartyID)
		ctx = context.WithValue(ctx, ctxKeyHandle, ident.Handle)
		ctx = context.WithValue(ctx, ctxKeyRole, ident.Role)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		instances, err := s.executor.List(r.Context(), limit)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		items := make([]instanceResponse, 0, len(instances))
		for _, inst := range instances {
			items = append(items, toInstanceResponse(inst))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})

	case http.MethodPost:
		role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
		if role != auth.RoleOperator {
			http.Error(w, "only operators can deploy instances", http.StatusForbidden)
			return
		}
		var req struct {
			Label string `json:"label"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		inst, err := s.executor.Deploy(r.Context(), req.Label)
		if err != nil {
			if errors.Is(err, host.ErrDuplicateLabel) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, toInstanceResponse(inst))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleInstanceDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/instances/")
	if rest == "" {
		http.Error(w, "instance id required", http.StatusBadRequest)
		return
	}

	instanceID, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleInspect(w, r, instanceID)
	case "open":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleOpen(w, r, instanceID)
	case "decide":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleDecide(w, r, instanceID)
	case "verify":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleVerify(w, r, instanceID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request, instanceID string) {
	inst, err := s.executor.Inspect(r.Context(), instanceID)
	if err != nil {
		if errors.Is(err, host.ErrInstanceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request, instanceID string) {
	var req struct {
		Claimant   string `json:"claimant"`
		Respondent string `json:"respondent"`
		Resolver   string `json:"resolver"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Claimant == "" || req.Respondent == "" || req.Resolver == "" {
		http.Error(w, "claimant, respondent, and resolver are required", http.StatusBadRequest)
		return
	}

	inst, err := s.executor.Invoke(r.Context(), instanceID, contract.OpenCall(req.Claimant, req.Respondent, req.Resolver))
	if err != nil {
		writeInvokeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request, instanceID string) {
	var req struct {
		Verdict string `json:"verdict"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	// The caller is whoever the token says it is, never a body field.
	caller, _ := r.Context().Value(ctxKeyHandle).(string)
	if caller == "" {
		http.Error(w, "caller identity missing", http.StatusUnauthorized)
		return
	}

	inst, err := s.executor.Invoke(r.Context(), instanceID, contract.DecideCall(caller, req.Verdict))
	if err != nil {
		writeInvokeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, instanceID string) {
	runs := 2
	if v := r.URL.Query().Get("runs"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runs = n
		}
	}

	if err := s.replayer.VerifyEquivalence(r.Context(), instanceID, runs); err != nil {
		switch {
		case errors.Is(err, host.ErrInstanceNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, host.ErrReplayDiverged), errors.Is(err, host.ErrStateMismatch):
			writeJSON(w, http.StatusConflict, map[string]any{"equivalent": false, "error": err.Error()})
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"equivalent": true, "runs": runs})
}

func writeInvokeError(w http.ResponseWriter, err error) {
	if errors.Is(err, host.ErrInstanceNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	switch contract.Kind(err) {
	case contract.FaultInvalidState:
		http.Error(w, err.Error(), http.StatusConflict)
	case contract.FaultUnauthorized:
		http.Error(w, err.Error(), http.StatusForbidden)
	case contract.FaultInvalidArgument:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
