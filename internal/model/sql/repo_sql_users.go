package sql

import (
	"context"
	"errors"
	"pumptrack/internal/entity"
	"strings"

	"gorm.io/gorm"
)

var errInvalidUserID = errors.New("invalid user id")

func (r *GormRepository) users(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&entity.DbUser{})
}

// exactlyOne 把零行受影响转换为 ErrRecordNotFound
func exactlyOne(result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// userFilter 按角色、状态与关键字（登录名或姓名，忽略大小写）过滤
func userFilter(params *entity.UserQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if params == nil {
			return db
		}
		if role := strings.TrimSpace(params.Role); role != "" {
			db = db.Where("role = ?", role)
		}
		if status := strings.TrimSpace(params.Status); status != "" {
			db = db.Where("status = ?", status)
		}
		if kw := strings.ToLower(strings.TrimSpace(params.Keyword)); kw != "" {
			like := "%" + kw + "%"
			db = db.Where("LOWER(user_id) LIKE ? OR LOWER(user_name) LIKE ?", like, like)
		}
		return db
	}
}

func (r *GormRepository) CreateUser(ctx context.Context, user *entity.DbUser) error {
	if err := r.ready(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// UpdateUser 只写入 updates 中非空的字段，空更新直接返回。
func (r *GormRepository) UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error {
	if err := r.ready(); err != nil {
		return err
	}
	if id == 0 {
		return errInvalidUserID
	}
	values := updates.ToMap()
	if len(values) == 0 {
		return nil
	}
	return exactlyOne(r.users(ctx).Where("id = ?", id).Updates(values))
}

// GetUserByLogin 按登录名查找，忽略大小写与首尾空白。
func (r *GormRepository) GetUserByLogin(ctx context.Context, userID string) (*entity.DbUser, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	login := strings.ToLower(strings.TrimSpace(userID))
	if login == "" {
		return nil, errors.New("user id is empty")
	}
	user := new(entity.DbUser)
	if err := r.users(ctx).Where("LOWER(user_id) = ?", login).First(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *GormRepository) GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, errInvalidUserID
	}
	user := new(entity.DbUser)
	if err := r.users(ctx).Where("id = ?", id).First(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *GormRepository) ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, nil, err
	}

	var page, size int
	if params != nil {
		page, size = int(params.Page), int(params.PageSize)
	}
	meta := r.calculatePagination(0, page, size)

	filtered := r.users(ctx).Scopes(userFilter(params)).Session(&gorm.Session{})
	if err := filtered.Count(&meta.Total).Error; err != nil {
		return nil, nil, err
	}

	users := make([]entity.DbUser, 0, meta.PageSize)
	err := filtered.Order("id ASC").
		Offset(int((meta.Page - 1) * meta.PageSize)).
		Limit(int(meta.PageSize)).
		Find(&users).Error
	if err != nil {
		return nil, nil, err
	}
	return users, meta, nil
}

func (r *GormRepository) DeleteUser(ctx context.Context, id uint) error {
	if err := r.ready(); err != nil {
		return err
	}
	if id == 0 {
		return errInvalidUserID
	}
	return exactlyOne(r.db.WithContext(ctx).Delete(&entity.DbUser{}, id))
}

func (r *GormRepository) CountUsers(ctx context.Context) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	var n int64
	err := r.users(ctx).Count(&n).Error
	return n, err
}
