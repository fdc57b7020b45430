package api

// RegisterUserRequest subscribes a user to a plan
type RegisterUserRequest struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Plan     string `json:"plan"`
}

// ChangePlanRequest moves a user to another plan
type ChangePlanRequest struct {
	Plan string `json:"plan"`
}

// FinanceStateResponse carries one finance state property of a user
type FinanceStateResponse struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// AuthorizedResponse answers whether a user may perform an operation
type AuthorizedResponse struct {
	Operation  string `json:"operation"`
	Authorized bool   `json:"authorized"`
}

// CreatePlanRequest creates a plan of a registered kind
type CreatePlanRequest struct {
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	Options map[string]string `json:"options"`
}

// UpdatePlanRequest replaces the options of a plan
type UpdatePlanRequest struct {
	Options map[string]string `json:"options"`
}

// PlanResponse describes a plan
type PlanResponse struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options"`
}

// PlansResponse lists the registered plans
type PlansResponse struct {
	Plans []string `json:"plans"`
}
