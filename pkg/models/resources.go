package models

import (
	"fmt"
	"strings"
)

// ResourceType names a billable resource kind
type ResourceType string

const (
	ResourceTypeCompute ResourceType = "compute"
	ResourceTypeVolume  ResourceType = "volume"
)

// ResourceItem identifies a billable resource configuration. It is a
// comparable value so it can key price tables directly.
type ResourceItem struct {
	Type ResourceType `json:"type"`
	VCPU int          `json:"vcpu,omitempty"`
	RAM  int          `json:"ram,omitempty"`
	Size int          `json:"size,omitempty"`
}

// NewComputeItem returns a compute item with the given shape
func NewComputeItem(vcpu, ram int) ResourceItem {
	return ResourceItem{Type: ResourceTypeCompute, VCPU: vcpu, RAM: ram}
}

// NewVolumeItem returns a volume item with the given size
func NewVolumeItem(size int) ResourceItem {
	return ResourceItem{Type: ResourceTypeVolume, Size: size}
}

func (r ResourceItem) String() string {
	switch r.Type {
	case ResourceTypeCompute:
		return fmt.Sprintf("compute{vcpu:%d,ram:%d}", r.VCPU, r.RAM)
	case ResourceTypeVolume:
		return fmt.Sprintf("volume{size:%d}", r.Size)
	default:
		return string(r.Type)
	}
}

// OrderState is the lifecycle state of a resource order as reported by the
// orchestration and accounting services
type OrderState string

const (
	OrderStateOpen                         OrderState = "open"
	OrderStateSelected                     OrderState = "selected"
	OrderStateFailedAfterSuccessfulRequest OrderState = "failed_after_successful_request"
	OrderStateFailedOnRequest              OrderState = "failed_on_request"
	OrderStateFulfilled                    OrderState = "fulfilled"
	OrderStateSpawning                     OrderState = "spawning"
	OrderStatePending                      OrderState = "pending"
	OrderStateUnableToCheckStatus          OrderState = "unable_to_check_status"
	OrderStatePausing                      OrderState = "pausing"
	OrderStatePaused                       OrderState = "paused"
	OrderStateHibernating                  OrderState = "hibernating"
	OrderStateHibernated                   OrderState = "hibernated"
	OrderStateStopping                     OrderState = "stopping"
	OrderStateStopped                      OrderState = "stopped"
	OrderStateResuming                     OrderState = "resuming"
	OrderStateAssignedForDeletion          OrderState = "assigned_for_deletion"
	OrderStateCheckingDeletion             OrderState = "checking_deletion"
	OrderStateClosed                       OrderState = "closed"
	OrderStateError                        OrderState = "error"
)

var orderStates = map[OrderState]struct{}{
	OrderStateOpen: {}, OrderStateSelected: {}, OrderStateFailedAfterSuccessfulRequest: {},
	OrderStateFailedOnRequest: {}, OrderStateFulfilled: {}, OrderStateSpawning: {},
	OrderStatePending: {}, OrderStateUnableToCheckStatus: {}, OrderStatePausing: {},
	OrderStatePaused: {}, OrderStateHibernating: {}, OrderStateHibernated: {},
	OrderStateStopping: {}, OrderStateStopped: {}, OrderStateResuming: {},
	OrderStateAssignedForDeletion: {}, OrderStateCheckingDeletion: {},
	OrderStateClosed: {}, OrderStateError: {},
}

// ParseOrderState parses a state name, ignoring case
func ParseOrderState(s string) (OrderState, error) {
	state := OrderState(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := orderStates[state]; !ok {
		return "", fmt.Errorf("%w: unknown order state %q", ErrInvalidParameter, s)
	}
	return state, nil
}
