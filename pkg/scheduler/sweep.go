package scheduler

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/records"
	"github.com/platinummonkey/finance/pkg/synclist"
)

// Accounting reports the resource usage of a user
type Accounting interface {
	GetUserRecords(ctx context.Context, id, provider string, start, end int64) ([]records.Record, error)
}

// Users gives runners access to the plan partitions
type Users interface {
	GetUserByID(id, provider string) (*models.FinanceUser, error)
	GetRegisteredUsersByPlan(planName string) *synclist.List[*models.FinanceUser]
	SaveUser(ctx context.Context, user *models.FinanceUser) error
}

// forEachUser locks and visits every user subscribed to plan. Users that
// left the plan before their lock was taken are skipped. A concurrent
// change to the partition ends the walk without error. A stopped runner ends
// it after the current user. Remote calls made for a user are not canceled by
// the stop.
func forEachUser(ctx context.Context, users Users, plan string, log *logrus.Logger, visit func(context.Context, *models.FinanceUser) error) error {
	partition := users.GetRegisteredUsersByPlan(plan)
	id := partition.StartIterating()
	defer partition.StopIterating(id)

	work := context.WithoutCancel(ctx)
	for ctx.Err() == nil {
		user, ok, err := partition.GetNext(id)
		if errors.Is(err, synclist.ErrModified) {
			log.Debug("Partition modified during sweep, waiting for the next cycle")
			return nil
		}
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		user.Lock()
		if !user.Subscribed || user.PlanName != plan {
			user.Unlock()
			continue
		}
		err = visit(work, user)
		key := user.Key()
		user.Unlock()

		if err != nil {
			log.WithField("user", key.String()).Errorf("Failed to process user: %v", err)
		}
	}
	return nil
}
