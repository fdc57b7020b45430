package api

import (
	"net/http"

	"github.com/platinummonkey/finance/pkg/httputil"
)

// createPlan handles POST /fs/plans
func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") || !httputil.RequireNonEmpty(w, req.Kind, "kind") {
		return
	}

	if err := s.service.CreatePlan(r.Context(), req.Kind, req.Name, req.Options); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, PlanResponse{Name: req.Name, Options: req.Options})
}

// listPlans handles GET /fs/plans
func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, PlansResponse{Plans: s.service.PlanNames()})
}

// getPlan handles GET /fs/plans/{name}
func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	vars, ok := httputil.PathStrings(w, r, "name")
	if !ok {
		return
	}

	options, err := s.service.GetPlanOptions(vars[0])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, PlanResponse{Name: vars[0], Options: options})
}

// updatePlan handles PUT /fs/plans/{name}
func (s *Server) updatePlan(w http.ResponseWriter, r *http.Request) {
	vars, ok := httputil.PathStrings(w, r, "name")
	if !ok {
		return
	}
	var req UpdatePlanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.service.UpdatePlanOptions(r.Context(), vars[0], req.Options); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, PlanResponse{Name: vars[0], Options: req.Options})
}

// removePlan handles DELETE /fs/plans/{name}
func (s *Server) removePlan(w http.ResponseWriter, r *http.Request) {
	vars, ok := httputil.PathStrings(w, r, "name")
	if !ok {
		return
	}

	if err := s.service.RemovePlan(r.Context(), vars[0]); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// reload handles POST /fs/reload
func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Reload(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
