// Package bunadapter stores Casbin policy rules in the casbin_rules table
// through the application's *bun.DB, so PostgreSQL and SQLite deployments
// share one policy store.
package bunadapter

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"github.com/uptrace/bun"
)

// CasbinRule is one policy ('p') or grouping ('g') line.
type CasbinRule struct {
	bun.BaseModel `bun:"table:casbin_rules,alias:cr"`

	Ptype string `bun:",pk,type:varchar(100),notnull"`
	V0    string `bun:",pk,type:varchar(255)"` // subject (relation role)
	V1    string `bun:",pk,type:varchar(255)"` // object kind
	V2    string `bun:",pk,type:varchar(255)"` // action
	V3    string `bun:",pk,type:varchar(255)"` // effect
	V4    string `bun:",pk,type:varchar(255)"`
	V5    string `bun:",pk,type:varchar(255)"`
}

// NewRule builds a rule from a policy line.
func NewRule(ptype string, values ...string) CasbinRule {
	r := CasbinRule{Ptype: ptype}
	fields := []*string{&r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5}
	for i, v := range values {
		if i >= len(fields) {
			break
		}
		*fields[i] = v
	}
	return r
}

// Values returns the rule fields up to the last non-empty one.
func (r CasbinRule) Values() []string {
	all := []string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
	last := -1
	for i, v := range all {
		if v != "" {
			last = i
		}
	}
	return all[:last+1]
}

// Adapter implements persist.Adapter on top of bun.
type Adapter struct {
	db *bun.DB
}

var _ persist.Adapter = (*Adapter)(nil)

// NewAdapter returns an adapter using db. The casbin_rules table is created by migrations.
func NewAdapter(db *bun.DB) *Adapter {
	return &Adapter{db: db}
}

// LoadPolicy loads every stored rule into m.
func (a *Adapter) LoadPolicy(m model.Model) error {
	var rules []CasbinRule
	if err := a.db.NewSelect().Model(&rules).Scan(context.Background()); err != nil {
		return fmt.Errorf("load casbin rules: %w", err)
	}
	for _, r := range rules {
		values := r.Values()
		if len(values) == 0 {
			continue
		}
		if err := m.AddPolicy(r.Ptype[:1], r.Ptype, values); err != nil {
			return fmt.Errorf("add casbin rule %s %v: %w", r.Ptype, values, err)
		}
	}
	return nil
}

// SavePolicy replaces the stored rules with the contents of m.
func (a *Adapter) SavePolicy(m model.Model) error {
	var rules []CasbinRule
	for _, sec := range []string{"p", "g"} {
		for ptype, assertion := range m[sec] {
			for _, line := range assertion.Policy {
				rules = append(rules, NewRule(ptype, line...))
			}
		}
	}

	return a.db.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*CasbinRule)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("clear casbin rules: %w", err)
		}
		if len(rules) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rules).Exec(ctx); err != nil {
			return fmt.Errorf("save casbin rules: %w", err)
		}
		return nil
	})
}

// AddPolicy stores a single rule.
func (a *Adapter) AddPolicy(_ string, ptype string, rule []string) error {
	r := NewRule(ptype, rule...)
	if _, err := a.db.NewInsert().Model(&r).On("CONFLICT DO NOTHING").Exec(context.Background()); err != nil {
		return fmt.Errorf("add casbin rule: %w", err)
	}
	return nil
}

// RemovePolicy deletes a single rule.
func (a *Adapter) RemovePolicy(_ string, ptype string, rule []string) error {
	r := NewRule(ptype, rule...)
	if _, err := a.db.NewDelete().Model(&r).WherePK().Exec(context.Background()); err != nil {
		return fmt.Errorf("remove casbin rule: %w", err)
	}
	return nil
}

// RemoveFilteredPolicy deletes rules whose fields starting at fieldIndex
// match fieldValues. Empty values act as wildcards.
func (a *Adapter) RemoveFilteredPolicy(_ string, ptype string, fieldIndex int, fieldValues ...string) error {
	columns := []string{"v0", "v1", "v2", "v3", "v4", "v5"}
	q := a.db.NewDelete().Model((*CasbinRule)(nil)).Where("ptype = ?", ptype)
	for i, v := range fieldValues {
		idx := fieldIndex + i
		if v == "" || idx < 0 || idx >= len(columns) {
			continue
		}
		q = q.Where("? = ?", bun.Ident(columns[idx]), v)
	}
	if _, err := q.Exec(context.Background()); err != nil {
		return fmt.Errorf("remove filtered casbin rules: %w", err)
	}
	return nil
}
