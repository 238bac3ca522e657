package identity

import (
	"context"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/config"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedFirstAdmin creates the admin account from configuration when no admin
// exists yet. Admins cannot sign up through the API.
func (s *Service) SeedFirstAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		zap.L().Info("FIRST_ADMIN not configured, skipping admin seed")
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		admins, err := s.user.WithTrx(tx).Count(ctx, &User{Role: authz.RoleAdmin})
		if err != nil {
			return err
		}
		if admins > 0 {
			return nil
		}

		if exist, err := s.user.WithTrx(tx).FindOne(ctx, &User{Email: email}); err != nil {
			return err
		} else if exist != nil {
			zap.L().Warn("FIRST_ADMIN email already belongs to a non-admin account", zap.String("email", email))
			return nil
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
		if err != nil {
			return err
		}

		admin := &User{
			ID:           s.node.Generate().String(),
			Email:        email,
			PasswordHash: string(hash),
			Role:         authz.RoleAdmin,
			IsVerified:   true,
		}
		if err := s.user.WithTrx(tx).Create(ctx, admin); err != nil {
			return err
		}

		zap.L().Info("first admin created", zap.String("user_id", admin.ID), zap.String("email", email))
		return nil
	})
}

func seedFirstAdmin(cfg *config.Config, svc *Service) error {
	return svc.SeedFirstAdmin(context.Background(), cfg.FirstAdmin.Email, cfg.FirstAdmin.Password)
}
