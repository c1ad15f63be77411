package iam

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/config"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
	"github.com/sriramreddyM/coco-annotator/internal/telemetry"
)

// ResourceKind is the Casbin object of a capability check.
type ResourceKind string

const (
	ResourceImage      ResourceKind = "image"
	ResourceDataset    ResourceKind = "dataset"
	ResourceAnnotation ResourceKind = "annotation"
)

// Resource is the target of a capability check.
type Resource struct {
	Kind ResourceKind

	// Owner is the username that created the entity (image uploader,
	// annotation creator, dataset owner).
	Owner string

	// Dataset the entity belongs to, when known.
	Dataset *models.Dataset
}

// ImageResource describes img inside ds.
func ImageResource(img *models.Image, ds *models.Dataset) Resource {
	return Resource{Kind: ResourceImage, Owner: img.UploadedBy, Dataset: ds}
}

// DatasetResource describes ds itself.
func DatasetResource(ds *models.Dataset) Resource {
	return Resource{Kind: ResourceDataset, Owner: ds.Owner, Dataset: ds}
}

// Policy decides whether principal may perform action on res.
type Policy interface {
	Allowed(p *Principal, action string, res Resource) (bool, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(p *Principal, action string, res Resource) (bool, error)

// Allowed implements Policy.
func (f PolicyFunc) Allowed(p *Principal, action string, res Resource) (bool, error) {
	return f(p, action, res)
}

// AnonymousPolicy returns the capability policy of the Anonymous Principal.
func AnonymousPolicy(access config.AnonymousAccess) Policy {
	return PolicyFunc(func(_ *Principal, action string, _ Resource) (bool, error) {
		switch access {
		case config.AnonymousPermissive:
			return true, nil
		case config.AnonymousReadOnly:
			return action == auth.ActionView || action == auth.ActionDownload, nil
		default:
			return false, nil
		}
	})
}

// CasbinPolicy evaluates authenticated principals against relation-role rules.
type CasbinPolicy struct {
	enforcer casbin.IEnforcer
}

// NewCasbinPolicy wraps enforcer. Rules are read only.
func NewCasbinPolicy(enforcer casbin.IEnforcer) *CasbinPolicy {
	return &CasbinPolicy{enforcer: enforcer}
}

// Allowed implements Policy. The principal is allowed when any of its
// relation roles toward res permits the action.
func (c *CasbinPolicy) Allowed(p *Principal, action string, res Resource) (bool, error) {
	if p.IsAnonymous() {
		return false, nil
	}
	for _, role := range RelationRoles(p, res) {
		ok, err := c.enforcer.Enforce(role, string(res.Kind), action)
		if err != nil {
			return false, fmt.Errorf("enforce %s %s %s: %w", role, res.Kind, action, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// RelationRoles lists the roles p holds toward res.
func RelationRoles(p *Principal, res Resource) []string {
	roles := []string{auth.RoleUser}
	if p.IsAdmin() {
		roles = append(roles, auth.RoleAdmin)
	}
	if (res.Owner != "" && p.Is(res.Owner)) || (res.Dataset != nil && p.Is(res.Dataset.Owner)) {
		roles = append(roles, auth.RoleOwner)
	}
	if res.Dataset != nil {
		if isMember(res.Dataset, p.Username()) {
			roles = append(roles, auth.RoleMember)
		}
		if res.Dataset.IsPublic {
			roles = append(roles, auth.RolePublic)
		}
	}
	return roles
}

func policyAttrs(action string, res Resource, allowed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(telemetry.AttrPolicyAction, action),
		attribute.String(telemetry.AttrPolicyResource, string(res.Kind)),
		attribute.Bool(telemetry.AttrPolicyAllowed, allowed),
	}
}
