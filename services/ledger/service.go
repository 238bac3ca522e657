package ledger

import (
	"context"
	"errors"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/repository"
	"reviewhub/pkg/sequence"
	"reviewhub/services/wallet"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var (
	// ErrReviewProcessed is wrapped by the Conflict returned when a review has
	// already left pending.
	ErrReviewProcessed = errors.New("review already processed")
	// ErrTargetReached is wrapped by the Conflict returned when a campaign has
	// no capacity left.
	ErrTargetReached = errors.New("campaign target reached")
	// ErrReviewerMissing means a review's author has no reviewer profile.
	ErrReviewerMissing = errors.New("reviewer profile not found")
)

// Service owns campaign progress and review moderation. Earnings move to
// wallets through wallet.Service inside the same database transaction.
type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	seq    sequence.Generator
	authz  *authz.Authorizer
	wallet *wallet.Service

	campaign repository.Repository[Campaign]
	review   repository.Repository[Review]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Authz    *authz.Authorizer
	Wallet   *wallet.Service
	Sequence sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		seq:    p.Sequence,
		authz:  p.Authz,
		wallet: p.Wallet,

		campaign: repository.ProvideStore[Campaign](p.DB),
		review:   repository.ProvideStore[Review](p.DB),
	}
}

func principal(ctx context.Context) (authz.Principal, error) {
	p, ok := authz.PrincipalFrom(ctx)
	if !ok {
		return authz.Principal{}, errutil.Unauthorized("authentication required", nil)
	}
	return p, nil
}
