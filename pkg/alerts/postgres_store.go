/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package alerts

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/routermon/pkg/models"
)

const (
	listRulesSQL = `SELECT id, name, metric, condition, threshold, unit, channels, disabled
FROM alert_rules ORDER BY position`

	upsertRuleSQL = `INSERT INTO alert_rules (id, name, metric, condition, threshold, unit, channels, disabled)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    metric = EXCLUDED.metric,
    condition = EXCLUDED.condition,
    threshold = EXCLUDED.threshold,
    unit = EXCLUDED.unit,
    channels = EXCLUDED.channels,
    disabled = EXCLUDED.disabled,
    updated_at = now()`

	deleteRuleSQL = `DELETE FROM alert_rules WHERE id = $1`
	countRulesSQL = `SELECT count(*) FROM alert_rules`
)

// pgxQuerier is the subset of *pgxpool.Pool the store uses.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps alert rules in the alert_rules table.
type PostgresStore struct {
	db pgxQuerier
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errNilPool
	}

	return &PostgresStore{db: pool}, nil
}

// SeedDefaults inserts the default rules when the table is empty.
func (s *PostgresStore) SeedDefaults(ctx context.Context) error {
	var count int64
	if err := s.db.QueryRow(ctx, countRulesSQL).Scan(&count); err != nil {
		return fmt.Errorf("count alert rules: %w", err)
	}

	if count > 0 {
		return nil
	}

	rules := DefaultRules()
	for i := range rules {
		if err := s.Upsert(ctx, &rules[i]); err != nil {
			return err
		}
	}

	return nil
}

func (s *PostgresStore) ListRules(ctx context.Context) ([]models.AlertRule, error) {
	rows, err := s.db.Query(ctx, listRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AlertRule

	for rows.Next() {
		var (
			r         models.AlertRule
			metric    string
			condition string
		)

		if err := rows.Scan(&r.ID, &r.Name, &metric, &condition, &r.Threshold, &r.Unit, &r.Channels, &r.Disabled); err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}

		r.Metric = models.Metric(metric)
		r.Condition = models.Condition(condition)
		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rules: %w", err)
	}

	return rules, nil
}

func (s *PostgresStore) ListActiveRules(ctx context.Context) ([]models.AlertRule, error) {
	rules, err := s.ListRules(ctx)
	if err != nil {
		return nil, err
	}

	return activeOnly(rules), nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rule *models.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	channels := rule.Channels
	if channels == nil {
		channels = []string{}
	}

	if _, err := s.db.Exec(ctx, upsertRuleSQL,
		rule.ID, rule.Name, string(rule.Metric), string(rule.Condition),
		rule.Threshold, rule.Unit, channels, rule.Disabled,
	); err != nil {
		return fmt.Errorf("upsert alert rule %s: %w", rule.ID, err)
	}

	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, deleteRuleSQL, id)
	if err != nil {
		return fmt.Errorf("delete alert rule %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}

	return nil
}
