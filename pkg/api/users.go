package api

import (
	"context"
	"net/http"

	"github.com/platinummonkey/finance/pkg/httputil"
	"github.com/platinummonkey/finance/pkg/observability"
)

// registerUser handles POST /fs/users
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ID, "id") ||
		!httputil.RequireNonEmpty(w, req.Provider, "provider") ||
		!httputil.RequireNonEmpty(w, req.Plan, "plan") {
		return
	}

	if err := s.service.RegisterUser(r.Context(), req.ID, req.Provider, req.Plan); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, req)
}

// unregisterUser handles DELETE /fs/users/{provider}/{id}
func (s *Server) unregisterUser(w http.ResponseWriter, r *http.Request) {
	s.userAction(w, r, s.service.UnregisterUser)
}

// removeUser handles DELETE /fs/users/{provider}/{id}/record
func (s *Server) removeUser(w http.ResponseWriter, r *http.Request) {
	s.userAction(w, r, s.service.RemoveUser)
}

// purgeUser handles DELETE /fs/users/{provider}/{id}/purge
func (s *Server) purgeUser(w http.ResponseWriter, r *http.Request) {
	s.userAction(w, r, s.service.PurgeUser)
}

// changePlan handles PUT /fs/users/{provider}/{id}/plan
func (s *Server) changePlan(w http.ResponseWriter, r *http.Request) {
	vars, ok := httputil.PathStrings(w, r, "provider", "id")
	if !ok {
		return
	}
	var req ChangePlanRequest
	if !httputil.ParseJSONOrError(w, r, &req) || !httputil.RequireNonEmpty(w, req.Plan, "plan") {
		return
	}

	if err := s.service.ChangePlan(r.Context(), vars[1], vars[0], req.Plan); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// updateFinanceState handles PUT /fs/users/{provider}/{id}/state. The body is
// the property map, PROPERTY_TYPE included.
func (s *Server) updateFinanceState(w http.ResponseWriter, r *http.Request) {
	vars, ok := httputil.PathStrings(w, r, "provider", "id")
	if !ok {
		return
	}
	var state map[string]string
	if !httputil.ParseJSONOrError(w, r, &state) {
		return
	}

	if err := s.service.UpdateFinanceState(r.Context(), vars[1], vars[0], state); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getFinanceState handles GET /fs/users/{provider}/{id}/state/{property}
func (s *Server) getFinanceState(w http.ResponseWriter, r *http.Request) {
	vars, ok := httputil.PathStrings(w, r, "provider", "id", "property")
	if !ok {
		return
	}

	value, err := s.service.GetFinanceState(vars[1], vars[0], vars[2])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, FinanceStateResponse{Property: vars[2], Value: value})
}

// isAuthorized handles GET /fs/users/{provider}/{id}/authorized/{operation}
func (s *Server) isAuthorized(w http.ResponseWriter, r *http.Request) {
	vars, ok := httputil.PathStrings(w, r, "provider", "id", "operation")
	if !ok {
		return
	}

	authorized, err := s.service.IsAuthorized(r.Context(), vars[1], vars[0], vars[2])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, AuthorizedResponse{Operation: vars[2], Authorized: authorized})
}

// userAction runs a user operation that only needs the path identity
func (s *Server) userAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id, provider string) error) {
	vars, ok := httputil.PathStrings(w, r, "provider", "id")
	if !ok {
		return
	}

	if err := action(r.Context(), vars[1], vars[0]); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httputil.StatusFor(err)
	log := observability.FromContext(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Debug("Request rejected")
	}
	httputil.WriteError(w, err)
}
