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
	"slices"
	"sync"

	"github.com/carverauto/routermon/pkg/models"
)

// RuleStore provides the rules the engine evaluates.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]models.AlertRule, error)
}

// RuleManager is a RuleStore that can also be edited.
type RuleManager interface {
	RuleStore
	ListRules(ctx context.Context) ([]models.AlertRule, error)
	Upsert(ctx context.Context, rule *models.AlertRule) error
	Remove(ctx context.Context, id string) error
}

// DefaultRules returns the rules installed when no other source is
// configured.
func DefaultRules() []models.AlertRule {
	return []models.AlertRule{
		{
			ID:        "1",
			Name:      "CPU Load High",
			Metric:    models.MetricCPU,
			Condition: models.ConditionGreater,
			Threshold: 90,
			Unit:      models.UnitPercent,
			Channels:  []string{"telegram"},
		},
		{
			ID:        "2",
			Name:      "Memory Almost Full",
			Metric:    models.MetricMemory,
			Condition: models.ConditionGreater,
			Threshold: 85,
			Unit:      models.UnitPercent,
			Channels:  []string{"telegram"},
		},
	}
}

// MemoryStore keeps rules in insertion order in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rules []models.AlertRule
}

// NewMemoryStore creates a store seeded with rules.
func NewMemoryStore(rules ...models.AlertRule) *MemoryStore {
	s := &MemoryStore{}
	for i := range rules {
		s.rules = append(s.rules, cloneRule(&rules[i]))
	}

	return s
}

func (s *MemoryStore) ListRules(_ context.Context) ([]models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AlertRule, 0, len(s.rules))
	for i := range s.rules {
		out = append(out, cloneRule(&s.rules[i]))
	}

	return out, nil
}

func (s *MemoryStore) ListActiveRules(ctx context.Context) ([]models.AlertRule, error) {
	rules, _ := s.ListRules(ctx)

	return activeOnly(rules), nil
}

// Upsert replaces the rule with the same id or appends a new one.
func (s *MemoryStore) Upsert(_ context.Context, rule *models.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.rules, func(r models.AlertRule) bool { return r.ID == rule.ID })
	if idx >= 0 {
		s.rules[idx] = cloneRule(rule)
		return nil
	}

	s.rules = append(s.rules, cloneRule(rule))

	return nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.rules, func(r models.AlertRule) bool { return r.ID == id })
	if idx < 0 {
		return ErrRuleNotFound
	}

	s.rules = slices.Delete(s.rules, idx, idx+1)

	return nil
}

// replace swaps the full rule set.
func (s *MemoryStore) replace(rules []models.AlertRule) {
	next := make([]models.AlertRule, 0, len(rules))
	for i := range rules {
		next = append(next, cloneRule(&rules[i]))
	}

	s.mu.Lock()
	s.rules = next
	s.mu.Unlock()
}

func activeOnly(rules []models.AlertRule) []models.AlertRule {
	return slices.DeleteFunc(rules, func(r models.AlertRule) bool { return r.Disabled })
}

func cloneRule(r *models.AlertRule) models.AlertRule {
	c := *r
	c.Channels = slices.Clone(r.Channels)

	return c
}
