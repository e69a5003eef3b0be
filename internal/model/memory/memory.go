// Package memory provides an in-process model.Repository used for demos
// (DBType=memory) and tests.
package memory

import (
	"context"
	"fmt"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Store keeps every table in memory, guarded by a single mutex.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]entity.Row
	nextID map[string]int64

	users      []entity.DbUser
	nextUserID uint
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tables: make(map[string][]entity.Row),
		nextID: make(map[string]int64),
	}
}

var _ model.Repository = (*Store)(nil)

func (s *Store) Select(ctx context.Context, table string, query model.SelectQuery) ([]entity.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !model.IsKnownTable(table) {
		return nil, fmt.Errorf("select %s: %w", table, model.ErrUnknownTable)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Row, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		if !matches(row, query) {
			continue
		}
		out = append(out, project(row, query.Columns))
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, table string, patch entity.Row, keyColumn string, keyValue interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !model.IsKnownTable(table) {
		return fmt.Errorf("update %s: %w", table, model.ErrUnknownTable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want := entity.FormatValue(keyValue)
	matched := 0
	for _, row := range s.tables[table] {
		if row.String(keyColumn) != want {
			continue
		}
		for col, value := range patch {
			if col == keyColumn || col == "id" {
				continue
			}
			row[col] = value
		}
		row["updated_at"] = time.Now()
		matched++
	}
	if matched == 0 {
		return fmt.Errorf("update %s %s=%v: %w", table, keyColumn, keyValue, model.ErrNoSuchRow)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, table string, row entity.Row) (entity.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !model.IsKnownTable(table) {
		return nil, fmt.Errorf("insert %s: %w", table, model.ErrUnknownTable)
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("insert %s: empty row", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key := row.String(entity.KeyColumn); key != "" {
		for _, existing := range s.tables[table] {
			if existing.String(entity.KeyColumn) == key {
				return nil, fmt.Errorf("insert %s: %w", table, gorm.ErrDuplicatedKey)
			}
		}
	}

	stored := row.Clone()
	s.nextID[table]++
	stored["id"] = s.nextID[table]
	now := time.Now()
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = now
	}
	if _, ok := stored["updated_at"]; !ok {
		stored["updated_at"] = now
	}
	s.tables[table] = append(s.tables[table], stored)
	return stored.Clone(), nil
}

func matches(row entity.Row, query model.SelectQuery) bool {
	for col, want := range query.Equals {
		got, ok := row.Lookup(col)
		if !ok || got != entity.FormatValue(want) {
			return false
		}
	}
	for col, values := range query.In {
		got, ok := row.Lookup(col)
		if !ok {
			return false
		}
		found := false
		for _, v := range values {
			if got == entity.FormatValue(v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func project(row entity.Row, columns []string) entity.Row {
	if len(columns) == 0 {
		return row.Clone()
	}
	out := make(entity.Row, len(columns))
	for _, col := range columns {
		if value, ok := row[col]; ok {
			out[col] = value
		}
	}
	return out
}

// CreateUser stores a user, enforcing a unique login id.
func (s *Store) CreateUser(ctx context.Context, user *entity.DbUser) error {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.UserID, user.UserID) {
			return gorm.ErrDuplicatedKey
		}
	}
	s.nextUserID++
	now := time.Now()
	user.ID = s.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users = append(s.users, *user)
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].ID != id {
			continue
		}
		u := &s.users[i]
		if updates.UserName != nil {
			u.UserName = *updates.UserName
		}
		if updates.Role != nil {
			u.Role = *updates.Role
		}
		if updates.PasswordHash != nil {
			u.PasswordHash = *updates.PasswordHash
		}
		if updates.PageAccess != nil {
			u.PageAccess = append(entity.CommaList{}, (*updates.PageAccess)...)
		}
		if updates.Status != nil {
			u.Status = *updates.Status
		}
		u.UpdatedAt = time.Now()
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (s *Store) GetUserByLogin(ctx context.Context, userID string) (*entity.DbUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trimmed := strings.TrimSpace(userID)
	for _, u := range s.users {
		if strings.EqualFold(u.UserID, trimmed) {
			copied := u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *Store) GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ID == id {
			copied := u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *Store) ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]entity.DbUser, 0, len(s.users))
	for _, u := range s.users {
		if params != nil {
			if role := strings.TrimSpace(params.Role); role != "" && u.Role != role {
				continue
			}
			if status := strings.TrimSpace(params.Status); status != "" && u.Status != status {
				continue
			}
			if kw := strings.ToLower(strings.TrimSpace(params.Keyword)); kw != "" &&
				!strings.Contains(strings.ToLower(u.UserID), kw) &&
				!strings.Contains(strings.ToLower(u.UserName), kw) {
				continue
			}
		}
		filtered = append(filtered, u)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })

	page, pageSize := int64(1), int64(20)
	if params != nil {
		if params.Page > 0 {
			page = params.Page
		}
		if params.PageSize > 0 {
			pageSize = params.PageSize
		}
	}
	start := (page - 1) * pageSize
	if start > int64(len(filtered)) {
		start = int64(len(filtered))
	}
	end := start + pageSize
	if end > int64(len(filtered)) {
		end = int64(len(filtered))
	}

	meta := &entity.Meta{Page: page, PageSize: pageSize, Total: int64(len(filtered))}
	return filtered[start:end], meta, nil
}

func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}
