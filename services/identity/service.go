package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/db/option"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/repository"
	"reviewhub/pkg/session"
	"reviewhub/pkg/storage"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	authz   *authz.Authorizer
	session *session.Manager
	store   storage.ObjectStore
	cost    int

	user     repository.Repository[User]
	business repository.Repository[Business]
	reviewer repository.Repository[Reviewer]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Authz   *authz.Authorizer
	Session *session.Manager    `optional:"true"`
	Store   storage.ObjectStore `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		authz:   p.Authz,
		session: p.Session,
		store:   p.Store,
		cost:    bcrypt.DefaultCost,

		user:     repository.ProvideStore[User](p.DB),
		business: repository.ProvideStore[Business](p.DB),
		reviewer: repository.ProvideStore[Reviewer](p.DB),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	zapLog := logger.FromContext(ctx)

	role, ok := authz.ParseRole(req.Role)
	if !ok || role == authz.RoleAdmin {
		return nil, errutil.ValidationFailed("role must be business or reviewer", nil)
	}
	email := normalizeEmail(req.Email)
	if email == "" || len(req.Password) < 8 {
		return nil, errutil.ValidationFailed("email and a password of at least 8 characters are required", nil)
	}
	if role == authz.RoleBusiness && strings.TrimSpace(req.CompanyName) == "" {
		return nil, errutil.ValidationFailed("company_name is required for business accounts", nil,
			errutil.WithDetails(errutil.Detail{Field: "company_name", Message: "required"}))
	}

	if exist, err := s.user.FindOne(ctx, &User{Email: email}); err != nil {
		return nil, errutil.Internal("failed to create account", err)
	} else if exist != nil {
		return nil, errutil.Conflict("email is already registered", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errutil.Internal("failed to create account", err)
	}

	user := &User{
		ID:           s.node.Generate().String(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.user.WithTrx(tx).Create(ctx, user); err != nil {
			return err
		}

		switch role {
		case authz.RoleBusiness:
			return s.business.WithTrx(tx).Create(ctx, &Business{
				ID:          user.ID,
				CompanyName: strings.TrimSpace(req.CompanyName),
				Description: req.Description,
				Website:     req.Website,
			})
		default:
			return s.reviewer.WithTrx(tx).Create(ctx, &Reviewer{ID: user.ID, Bio: req.Bio})
		}
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("email is already registered", err)
		}
		zapLog.Error("failed to create account", zap.Error(err))
		return nil, errutil.Internal("failed to create account", err)
	}

	zapLog.Info("account created", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if s.session == nil {
		return nil, errutil.NotImplemented("sessions are not configured", nil)
	}

	invalid := errutil.Unauthorized("invalid email or password", nil)

	user, err := s.user.FindOne(ctx, &User{Email: normalizeEmail(req.Email)})
	if err != nil {
		return nil, errutil.Internal("failed to sign in", err)
	}
	if user == nil {
		return nil, invalid
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, invalid
	}

	token, expiresAt, err := s.session.Issue(authz.Principal{UserID: user.ID, Role: user.Role})
	if err != nil {
		return nil, errutil.Internal("failed to sign in", err)
	}

	return &SignInResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) Me(ctx context.Context) (*Profile, error) {
	p, ok := authz.PrincipalFrom(ctx)
	if !ok {
		return nil, errutil.Unauthorized("authentication required", nil)
	}
	return s.GetProfile(ctx, p.UserID)
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.user.FindOne(ctx, &User{ID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load profile", err)
	}
	if user == nil {
		return nil, errutil.NotFound("user not found", nil)
	}

	profile := &Profile{User: user}
	switch user.Role {
	case authz.RoleBusiness:
		profile.Business, err = s.business.FindOne(ctx, &Business{ID: user.ID})
	case authz.RoleReviewer:
		profile.Reviewer, err = s.reviewer.FindOne(ctx, &Reviewer{ID: user.ID})
	}
	if err != nil {
		return nil, errutil.Internal("failed to load profile", err)
	}

	return profile, nil
}

// FindUserByEmail returns (nil, nil) for unknown addresses.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return s.user.FindOne(ctx, &User{Email: email})
}

func (s *Service) SetVerified(ctx context.Context, userID string, verified bool) (*User, error) {
	admin, err := s.authz.Require(ctx, authz.ActionUserVerify)
	if err != nil {
		return nil, err
	}

	// map so that false is written too
	if err := s.user.Update(ctx, userID, map[string]any{"is_verified": verified}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("user not found", nil)
		}
		return nil, errutil.Internal("failed to update user", err)
	}

	logger.FromContext(ctx).Info("user verification changed",
		zap.String("user_id", userID), zap.Bool("verified", verified), zap.String("admin_id", admin.UserID))

	return s.user.FindOne(ctx, &User{ID: userID})
}

// UploadVerificationDocument stores the file and appends its reference to the
// caller's business profile.
func (s *Service) UploadVerificationDocument(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (*Business, error) {
	p, err := s.authz.Require(ctx, authz.ActionDocumentUpload)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, errutil.NotImplemented("document storage is not configured", nil)
	}

	ext := path.Ext(filename)
	name := slug.Make(strings.TrimSuffix(filename, ext))
	if name == "" {
		name = "document"
	}
	key := fmt.Sprintf("verification/%s/%s-%s%s", p.UserID, s.node.Generate().String(), name, strings.ToLower(ext))

	ref, err := s.store.Upload(ctx, key, r, size, contentType)
	if err != nil {
		logger.FromContext(ctx).Error("failed to upload verification document", zap.String("key", key), zap.Error(err))
		return nil, errutil.BadGateway("failed to store document", err)
	}

	var out *Business
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var b Business
		if err := tx.Scopes(option.LockingUpdate).Where("id = ?", p.UserID).Take(&b).Error; err != nil {
			return err
		}
		b.VerificationDocuments = append(b.VerificationDocuments, ref)
		if err := tx.Model(&b).Update("verification_documents", b.VerificationDocuments).Error; err != nil {
			return err
		}
		out = &b
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("business profile not found", nil)
		}
		return nil, errutil.Internal("failed to save document reference", err)
	}

	return out, nil
}
