package model

import (
	"context"
	"errors"
	"pumptrack/internal/entity"
)

var (
	// ErrUnknownTable is returned when a table name is not part of the program schema.
	ErrUnknownTable = errors.New("unknown table")
	// ErrNoSuchRow is returned by Update when no row matched the key.
	ErrNoSuchRow = errors.New("no such row")
	// ErrRepositoryNotReady is returned when the backing database is missing.
	ErrRepositoryNotReady = errors.New("repository not initialised")
)

// KnownTables 允许通过名称访问的表。
var KnownTables = map[string]struct{}{
	entity.TablePortal:           {},
	entity.TableSurvey:           {},
	entity.TableDispatchMaterial: {},
	entity.TableInstallation:     {},
	entity.TableSystemInfo:       {},
	entity.TableIPPayment:        {},
	entity.TablePortalUpdate:     {},
}

// IsKnownTable reports whether table may be addressed by name.
func IsKnownTable(table string) bool {
	_, ok := KnownTables[table]
	return ok
}

// SelectQuery narrows a Select call. Empty fields mean "no constraint".
type SelectQuery struct {
	Columns []string
	Equals  map[string]interface{}
	In      map[string][]interface{}
}

// RecordStore 是阶段页面读写数据所用的通用记录存储接口
type RecordStore interface {
	Select(ctx context.Context, table string, query SelectQuery) ([]entity.Row, error)
	Update(ctx context.Context, table string, patch entity.Row, keyColumn string, keyValue interface{}) error
	Insert(ctx context.Context, table string, row entity.Row) (entity.Row, error)
}

// Repository 定义数据库操作接口
type Repository interface {
	RecordStore

	// 用户管理
	CreateUser(ctx context.Context, user *entity.DbUser) error
	UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error
	GetUserByLogin(ctx context.Context, userID string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error)
	ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error)
	DeleteUser(ctx context.Context, id uint) error
	CountUsers(ctx context.Context) (int64, error)
}
