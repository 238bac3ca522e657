// Package authz is the single place that decides what a role may do.
package authz

import (
	"context"

	"reviewhub/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
)

var Module = fx.Module("authz", fx.Provide(New))

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleBusiness Role = "business"
	RoleReviewer Role = "reviewer"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleBusiness, RoleReviewer:
		return r, true
	}
	return "", false
}

type Action string

const (
	ActionCampaignCreate   Action = "campaign:create"
	ActionCampaignModerate Action = "campaign:moderate"
	ActionCampaignDelete   Action = "campaign:delete"
	ActionReviewSubmit     Action = "review:submit"
	ActionReviewModerate   Action = "review:moderate"
	ActionReviewList       Action = "review:list"
	ActionWalletRead       Action = "wallet:read"
	ActionWithdrawRequest  Action = "withdrawal:request"
	ActionWithdrawSettle   Action = "withdrawal:settle"
	ActionUserVerify       Action = "user:verify"
	ActionDocumentUpload   Action = "document:upload"
	ActionPaymentReconcile Action = "payment:reconcile"
)

const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

var policy = map[Role][]Action{
	RoleAdmin: {
		ActionCampaignModerate, ActionCampaignDelete,
		ActionReviewModerate, ActionReviewList,
		ActionWalletRead, ActionWithdrawSettle,
		ActionUserVerify, ActionPaymentReconcile,
	},
	RoleBusiness: {
		ActionCampaignCreate, ActionCampaignDelete,
		ActionReviewList, ActionWalletRead,
		ActionDocumentUpload,
	},
	RoleReviewer: {
		ActionReviewSubmit, ActionReviewList,
		ActionWalletRead, ActionWithdrawRequest,
	},
}

type Authorizer struct {
	enforcer *casbin.Enforcer
}

func New() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	for role, actions := range policy {
		for _, act := range actions {
			if _, err := e.AddPolicy(string(role), string(act)); err != nil {
				return nil, err
			}
		}
	}

	return &Authorizer{enforcer: e}, nil
}

// Can is a pure function of (role, action).
func (a *Authorizer) Can(role Role, act Action) bool {
	ok, err := a.enforcer.Enforce(string(role), string(act))
	return err == nil && ok
}

// Require returns the caller's principal when it may perform act.
func (a *Authorizer) Require(ctx context.Context, act Action) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return Principal{}, errutil.Unauthorized("authentication required", nil)
	}
	if !a.Can(p.Role, act) {
		return Principal{}, errutil.Forbidden("you are not allowed to perform this action", nil)
	}
	return p, nil
}
