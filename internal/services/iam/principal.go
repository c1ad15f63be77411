package iam

import (
	"encoding/json"

	"github.com/sriramreddyM/coco-annotator/internal/auth"
	"github.com/sriramreddyM/coco-annotator/internal/db/models"
)

// Kind tags the Principal variant.
type Kind string

const (
	KindUser      Kind = "user"
	KindAnonymous Kind = "anonymous"
)

// Method records which credential resolved the Principal.
type Method string

const (
	MethodCookie Method = "cookie"
	MethodToken  Method = "token"
	MethodAPIKey Method = "api_key"
	MethodNone   Method = "none"
)

// Fixed identity of the Anonymous Principal.
const (
	AnonymousUsername = "anonymous"
	AnonymousName     = "Anonymous User"
)

// Principal is the identity resolved for one request. It is either a stored
// account (KindUser, User set) or the Anonymous Principal (KindAnonymous,
// User nil). Capability checks dispatch on Kind.
type Principal struct {
	Kind   Kind
	User   *models.User
	Method Method

	// SessionID is set when the cookie session resolved the request.
	SessionID string

	policy Policy
}

// NewUserPrincipal builds an authenticated principal for user.
func NewUserPrincipal(user *models.User, method Method, sessionID string, policy Policy) *Principal {
	return &Principal{Kind: KindUser, User: user, Method: method, SessionID: sessionID, policy: policy}
}

// NewAnonymousPrincipal builds the Anonymous Principal governed by policy.
func NewAnonymousPrincipal(policy Policy) *Principal {
	return &Principal{Kind: KindAnonymous, Method: MethodNone, policy: policy}
}

// IsAnonymous reports whether no account backs the principal.
func (p *Principal) IsAnonymous() bool {
	return p == nil || p.Kind == KindAnonymous
}

// Username returns the account username, or "anonymous".
func (p *Principal) Username() string {
	if p.IsAnonymous() {
		return AnonymousUsername
	}
	return p.User.Username
}

// ID returns the account ID, empty for the Anonymous Principal.
func (p *Principal) ID() string {
	if p.IsAnonymous() {
		return ""
	}
	return p.User.ID
}

// IsAdmin reports whether the account carries the admin flag.
func (p *Principal) IsAdmin() bool {
	return !p.IsAnonymous() && p.User.IsAdmin
}

// Is reports whether the principal is the account named username (case-insensitive).
func (p *Principal) Is(username string) bool {
	return !p.IsAnonymous() && auth.SameUsername(p.User.Username, username)
}

// Allowed evaluates action on res under the principal's policy. A principal
// without a policy is denied everything.
func (p *Principal) Allowed(action string, res Resource) (bool, error) {
	if p == nil || p.policy == nil {
		return false, nil
	}
	return p.policy.Allowed(p, action, res)
}

func (p *Principal) can(action string, res Resource) bool {
	ok, err := p.Allowed(action, res)
	return err == nil && ok
}

// CanView reports whether the principal may see res. Policy errors deny.
func (p *Principal) CanView(res Resource) bool { return p.can(auth.ActionView, res) }

// CanEdit reports whether the principal may modify res.
func (p *Principal) CanEdit(res Resource) bool { return p.can(auth.ActionEdit, res) }

// CanDownload reports whether the principal may export res.
func (p *Principal) CanDownload(res Resource) bool { return p.can(auth.ActionDownload, res) }

// CanDelete reports whether the principal may delete res.
func (p *Principal) CanDelete(res Resource) bool { return p.can(auth.ActionDelete, res) }

// SeesAllDatasets reports whether the visibility scope is unrestricted. The
// Anonymous Principal and admins see every collection unfiltered.
func (p *Principal) SeesAllDatasets() bool {
	return p.IsAnonymous() || p.IsAdmin()
}

// CanSeeDataset reports whether ds is inside the principal's visibility scope.
func (p *Principal) CanSeeDataset(ds *models.Dataset) bool {
	if p.SeesAllDatasets() {
		return true
	}
	return ds.IsPublic || p.Is(ds.Owner) || isMember(ds, p.User.Username)
}

// VisibleDatasets applies the visibility scope to datasets. all is true when
// the principal sees every dataset; otherwise ids lists the visible ones.
func (p *Principal) VisibleDatasets(datasets []models.Dataset) (all bool, ids []int64) {
	if p.SeesAllDatasets() {
		return true, nil
	}
	ids = []int64{}
	for i := range datasets {
		if p.CanSeeDataset(&datasets[i]) {
			ids = append(ids, datasets[i].ID)
		}
	}
	return false, ids
}

type anonymousJSON struct {
	Admin     bool   `json:"admin"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	IsAdmin   bool   `json:"is_admin"`
	Anonymous bool   `json:"anonymous"`
}

// MarshalJSON renders the account (without password) or the fixed anonymous identity.
func (p *Principal) MarshalJSON() ([]byte, error) {
	if p.IsAnonymous() {
		return json.Marshal(anonymousJSON{
			Username:  AnonymousUsername,
			Name:      AnonymousName,
			Anonymous: true,
		})
	}
	return json.Marshal(p.User)
}

func isMember(ds *models.Dataset, username string) bool {
	for _, m := range ds.Members {
		if auth.SameUsername(m, username) {
			return true
		}
	}
	return false
}
