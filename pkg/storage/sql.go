package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/finance/pkg/models"
)

var tracer = otel.Tracer("github.com/platinummonkey/finance/pkg/storage")

// Placeholder renders the n-th (1-based) bind parameter of a SQL dialect
type Placeholder func(n int) string

// DollarPlaceholder renders PostgreSQL style parameters ($1, $2, ...)
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// QuestionPlaceholder renders SQLite style parameters (?)
func QuestionPlaceholder(int) string { return "?" }

// SQLStore implements Store on top of database/sql. Users are stored as JSON
// documents keyed by (user_id, provider); plan options as a JSON object.
type SQLStore struct {
	db      *sql.DB
	dialect string
	queries sqlQueries
}

type sqlQueries struct {
	saveUser   string
	removeUser string
	loadUsers  string
	savePlan   string
	removePlan string
	loadPlans  string
}

// NewSQLStore wraps an open database. The finance_users and finance_plans
// tables must already exist.
func NewSQLStore(db *sql.DB, dialect string, p Placeholder) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		queries: sqlQueries{
			saveUser: fmt.Sprintf(`INSERT INTO finance_users (user_id, provider, data, updated_at)
				VALUES (%s, %s, %s, CURRENT_TIMESTAMP)
				ON CONFLICT (user_id, provider) DO UPDATE
				SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`, p(1), p(2), p(3)),
			removeUser: fmt.Sprintf(`DELETE FROM finance_users WHERE user_id = %s AND provider = %s`, p(1), p(2)),
			loadUsers:  `SELECT data FROM finance_users ORDER BY provider, user_id`,
			savePlan: fmt.Sprintf(`INSERT INTO finance_plans (name, kind, options, updated_at)
				VALUES (%s, %s, %s, CURRENT_TIMESTAMP)
				ON CONFLICT (name) DO UPDATE
				SET kind = excluded.kind, options = excluded.options, updated_at = CURRENT_TIMESTAMP`, p(1), p(2), p(3)),
			removePlan: fmt.Sprintf(`DELETE FROM finance_plans WHERE name = %s`, p(1)),
			loadPlans:  `SELECT name, kind, options FROM finance_plans ORDER BY name`,
		},
	}
}

// DB returns the underlying database handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", s.dialect),
		attribute.String("db.operation", op),
	)
	return tracer.Start(ctx, "SQLStore."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SaveUser implements UserStore.SaveUser
func (s *SQLStore) SaveUser(ctx context.Context, user *models.FinanceUser) (err error) {
	ctx, span := s.startSpan(ctx, "SaveUser", attribute.String("user", user.Key().String()))
	defer func() { endSpan(span, err) }()

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, s.queries.saveUser, user.ID, user.Provider, string(data)); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// RemoveUser implements UserStore.RemoveUser
func (s *SQLStore) RemoveUser(ctx context.Context, id models.UserID) (err error) {
	ctx, span := s.startSpan(ctx, "RemoveUser", attribute.String("user", id.String()))
	defer func() { endSpan(span, err) }()

	result, err := s.db.ExecContext(ctx, s.queries.removeUser, id.ID, id.Provider)
	if err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// LoadUsers implements UserStore.LoadUsers
func (s *SQLStore) LoadUsers(ctx context.Context) (users []*models.FinanceUser, err error) {
	ctx, span := s.startSpan(ctx, "LoadUsers")
	defer func() { endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx, s.queries.loadUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err = rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user := &models.FinanceUser{}
		if err = json.Unmarshal([]byte(data), user); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user: %w", err)
		}
		users = append(users, user)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	span.SetAttributes(attribute.Int("result.count", len(users)))
	return users, nil
}

// SavePlan implements PlanStore.SavePlan
func (s *SQLStore) SavePlan(ctx context.Context, plan PlanRecord) (err error) {
	ctx, span := s.startSpan(ctx, "SavePlan", attribute.String("plan", plan.Name))
	defer func() { endSpan(span, err) }()

	options, err := json.Marshal(plan.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal plan options: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, s.queries.savePlan, plan.Name, plan.Kind, string(options)); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// RemovePlan implements PlanStore.RemovePlan
func (s *SQLStore) RemovePlan(ctx context.Context, name string) (err error) {
	ctx, span := s.startSpan(ctx, "RemovePlan", attribute.String("plan", name))
	defer func() { endSpan(span, err) }()

	result, err := s.db.ExecContext(ctx, s.queries.removePlan, name)
	if err != nil {
		return fmt.Errorf("failed to remove plan: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("plan %s: %w", name, ErrNotFound)
	}
	return nil
}

// LoadPlans implements PlanStore.LoadPlans
func (s *SQLStore) LoadPlans(ctx context.Context) (plans []PlanRecord, err error) {
	ctx, span := s.startSpan(ctx, "LoadPlans")
	defer func() { endSpan(span, err) }()

	rows, err := s.db.QueryContext(ctx, s.queries.loadPlans)
	if err != nil {
		return nil, fmt.Errorf("failed to load plans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			plan    PlanRecord
			options string
		)
		if err = rows.Scan(&plan.Name, &plan.Kind, &options); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		if err = json.Unmarshal([]byte(options), &plan.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options of plan %s: %w", plan.Name, err)
		}
		plans = append(plans, plan)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}
	return plans, nil
}

// HealthCheck pings the database
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s unhealthy: %w", s.dialect, err)
	}
	return nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
