package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/uptrace/bun"

	casbinbunadapter "github.com/sriramreddyM/coco-annotator/internal/auth/bunadapter"
)

// Relation roles describe how an account relates to the resource being
// checked. They are the Casbin subjects; one account may hold several.
const (
	RoleAdmin  = "role:admin"
	RoleOwner  = "role:owner"
	RoleMember = "role:member"
	RolePublic = "role:public"
	RoleUser   = "role:user"
)

// Actions checked against resources.
const (
	ActionView     = "view"
	ActionEdit     = "edit"
	ActionDownload = "download"
	ActionDelete   = "delete"
)

// casbinModel matches a relation role against (object kind, action) rules.
// "*" in a rule matches any object or action.
const casbinModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act, eft

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// DefaultPolicyRules is the rule set seeded into casbin_rules by migrations.
func DefaultPolicyRules() []casbinbunadapter.CasbinRule {
	rule := func(sub, obj, act string) casbinbunadapter.CasbinRule {
		return casbinbunadapter.NewRule("p", sub, obj, act, "allow")
	}
	return []casbinbunadapter.CasbinRule{
		rule(RoleAdmin, "*", "*"),
		rule(RoleOwner, "*", "*"),
		rule(RoleMember, "*", ActionView),
		rule(RoleMember, "*", ActionEdit),
		rule(RoleMember, "*", ActionDownload),
		rule(RolePublic, "*", ActionView),
		rule(RolePublic, "*", ActionDownload),
	}
}

// NewModel parses the embedded access model.
func NewModel() (model.Model, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}
	return m, nil
}

// InitEnforcer creates a Casbin enforcer whose rules live in the casbin_rules table.
func InitEnforcer(db *bun.DB) (casbin.IEnforcer, error) {
	m, err := NewModel()
	if err != nil {
		return nil, err
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, casbinbunadapter.NewAdapter(db))
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load casbin policies: %w", err)
	}

	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer holding rules in memory only.
func NewMemoryEnforcer(rules []casbinbunadapter.CasbinRule) (casbin.IEnforcer, error) {
	m, err := NewModel()
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	for _, r := range rules {
		params := make([]any, 0, 4)
		for _, v := range r.Values() {
			params = append(params, v)
		}
		if _, err := enforcer.AddPolicy(params...); err != nil {
			return nil, fmt.Errorf("add casbin rule: %w", err)
		}
	}
	return enforcer, nil
}
