package model

import (
	"context"
	"errors"
	"pumptrack/internal/auth"
	"pumptrack/internal/config"
	"pumptrack/internal/entity"
	"strings"

	"github.com/sirupsen/logrus"
)

// SeedDefaultAdmin creates the bootstrap administrator when the users table is empty
// and ADMIN_USER_ID/ADMIN_PASSWORD are configured.
func SeedDefaultAdmin(ctx context.Context, repo Repository, cfg config.Config) error {
	if repo == nil {
		return nil
	}
	userID := strings.TrimSpace(cfg.AdminUserID)
	password := strings.TrimSpace(cfg.AdminPassword)
	if userID == "" || password == "" {
		return nil
	}

	count, err := repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return errors.Join(errors.New("hash bootstrap password"), err)
	}

	admin := &entity.DbUser{
		UserID:       userID,
		PasswordHash: hash,
		UserName:     strings.TrimSpace(cfg.AdminName),
		Role:         entity.UserRoleAdmin,
		PageAccess:   entity.CommaList(auth.AllPages()),
		Status:       entity.UserStatusActive,
	}
	if err := repo.CreateUser(ctx, admin); err != nil {
		return err
	}
	logrus.WithField("user_id", userID).Info("bootstrap admin created")
	return nil
}
