// Package governance drives the resources of a user through pause and resume
// as its payment status changes.
//
// Each evaluation takes the user's governance state and whether it has paid:
//
//	state             paid              not paid
//	DEFAULT           stay              start grace period, WAITING_FOR_STOP
//	WAITING_FOR_STOP  DEFAULT           STOPPING once the grace period elapsed
//	STOPPING          DEFAULT           hibernate (or stop), then STOPPED
//	STOPPED           RESUMING          stay
//	RESUMING          resume, DEFAULT   STOPPED
//
// A failed orchestration call leaves the state unchanged so the next sweep
// retries it.
package governance

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/observability"
	"github.com/platinummonkey/finance/pkg/timeutil"
)

// Orchestrator controls every resource owned by a user
type Orchestrator interface {
	PauseResources(ctx context.Context, id, provider string) error
	HibernateResources(ctx context.Context, id, provider string) error
	StopResources(ctx context.Context, id, provider string) error
	ResumeResources(ctx context.Context, id, provider string) error
	PurgeUser(ctx context.Context, id, provider string) error
}

// ResourcesPolicy is the governance state machine of one plan
type ResourcesPolicy struct {
	orchestrator Orchestrator
	gracePeriod  int64
	clock        timeutil.Clock
	metrics      *observability.Metrics
	log          *logrus.Logger
}

// NewResourcesPolicy creates a policy that stops resources gracePeriodMillis
// after a user is first seen not paying
func NewResourcesPolicy(orchestrator Orchestrator, gracePeriodMillis int64, clock timeutil.Clock, metrics *observability.Metrics, log *logrus.Logger) *ResourcesPolicy {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &ResourcesPolicy{
		orchestrator: orchestrator,
		gracePeriod:  gracePeriodMillis,
		clock:        clock,
		metrics:      metrics,
		log:          log,
	}
}

// UpdateUserState advances the user's governance state and reports whether
// it changed. The caller must hold the user lock and persist the user when
// the state changed.
func (p *ResourcesPolicy) UpdateUserState(ctx context.Context, user *models.FinanceUser, paid bool) (bool, error) {
	from := user.State
	var to models.UserState

	switch from {
	case models.UserStateDefault:
		to = p.processDefault(user, paid)
	case models.UserStateWaitingForStop:
		to = p.processWaitingForStop(user, paid)
	case models.UserStateStopping:
		to = p.processStopping(ctx, user, paid)
	case models.UserStateStopped:
		to = p.processStopped(paid)
	case models.UserStateResuming:
		to = p.processResuming(ctx, user, paid)
	default:
		return false, fmt.Errorf("%w: unknown user state %q for user %s", models.ErrInternal, from, user.Key())
	}

	if to == from {
		return false, nil
	}

	user.State = to
	p.metrics.RecordTransition(string(from), string(to))
	p.log.WithFields(logrus.Fields{
		"user": user.Key().String(),
		"from": from,
		"to":   to,
	}).Info("User state changed")
	return true, nil
}

func (p *ResourcesPolicy) processDefault(user *models.FinanceUser, paid bool) models.UserState {
	if paid {
		return models.UserStateDefault
	}
	user.WaitPeriodStart = p.clock.NowMillis()
	return models.UserStateWaitingForStop
}

func (p *ResourcesPolicy) processWaitingForStop(user *models.FinanceUser, paid bool) models.UserState {
	if paid {
		return models.UserStateDefault
	}
	if p.clock.NowMillis()-user.WaitPeriodStart >= p.gracePeriod {
		return models.UserStateStopping
	}
	return models.UserStateWaitingForStop
}

func (p *ResourcesPolicy) processStopping(ctx context.Context, user *models.FinanceUser, paid bool) models.UserState {
	if paid {
		return models.UserStateDefault
	}
	if err := p.hibernateOrStop(ctx, user); err != nil {
		p.log.WithField("user", user.Key().String()).Errorf("Failed to stop user resources: %v", err)
		return models.UserStateStopping
	}
	return models.UserStateStopped
}

func (p *ResourcesPolicy) processStopped(paid bool) models.UserState {
	if paid {
		return models.UserStateResuming
	}
	return models.UserStateStopped
}

func (p *ResourcesPolicy) processResuming(ctx context.Context, user *models.FinanceUser, paid bool) models.UserState {
	if !paid {
		return models.UserStateStopped
	}
	if err := p.orchestrator.ResumeResources(ctx, user.ID, user.Provider); err != nil {
		p.log.WithField("user", user.Key().String()).Errorf("Failed to resume user resources: %v", err)
		return models.UserStateResuming
	}
	return models.UserStateDefault
}

func (p *ResourcesPolicy) hibernateOrStop(ctx context.Context, user *models.FinanceUser) error {
	err := p.orchestrator.HibernateResources(ctx, user.ID, user.Provider)
	if errors.Is(err, models.ErrNotImplemented) {
		p.log.WithField("user", user.Key().String()).Debug("Hibernation not supported, stopping resources")
		return p.orchestrator.StopResources(ctx, user.ID, user.Provider)
	}
	return err
}

// ResumeResources resumes every resource of the user
func (p *ResourcesPolicy) ResumeResources(ctx context.Context, user *models.FinanceUser) error {
	return p.orchestrator.ResumeResources(ctx, user.ID, user.Provider)
}

// PurgeResources deletes every resource of the user
func (p *ResourcesPolicy) PurgeResources(ctx context.Context, user *models.FinanceUser) error {
	return p.orchestrator.PurgeUser(ctx, user.ID, user.Provider)
}
