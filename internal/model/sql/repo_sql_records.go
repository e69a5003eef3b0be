package sql

import (
	"context"
	"fmt"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"sort"
	"time"

	"gorm.io/gorm/clause"
)

// Select reads rows of a program table in primary-key order.
func (r *GormRepository) Select(ctx context.Context, table string, query model.SelectQuery) ([]entity.Row, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if !model.IsKnownTable(table) {
		return nil, fmt.Errorf("select %s: %w", table, model.ErrUnknownTable)
	}

	tx := r.db.WithContext(ctx).Table(table)
	if len(query.Columns) > 0 {
		for _, col := range query.Columns {
			if err := checkColumn(col); err != nil {
				return nil, err
			}
		}
		tx = tx.Select(query.Columns)
	}

	for _, col := range sortedKeys(query.Equals) {
		if err := checkColumn(col); err != nil {
			return nil, err
		}
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: col}, Value: query.Equals[col]})
	}
	for _, col := range sortedKeys(query.In) {
		if err := checkColumn(col); err != nil {
			return nil, err
		}
		values := query.In[col]
		if len(values) == 0 {
			// IN () matches nothing
			return []entity.Row{}, nil
		}
		tx = tx.Where(clause.IN{Column: clause.Column{Name: col}, Values: values})
	}

	var raw []map[string]interface{}
	if err := tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}}).Find(&raw).Error; err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	rows := make([]entity.Row, 0, len(raw))
	for _, item := range raw {
		rows = append(rows, entity.Row(item))
	}
	return rows, nil
}

// Update applies patch to the rows whose keyColumn equals keyValue.
func (r *GormRepository) Update(ctx context.Context, table string, patch entity.Row, keyColumn string, keyValue interface{}) error {
	if err := r.ready(); err != nil {
		return err
	}
	if !model.IsKnownTable(table) {
		return fmt.Errorf("update %s: %w", table, model.ErrUnknownTable)
	}
	if err := checkColumn(keyColumn); err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}

	updates := make(map[string]interface{}, len(patch)+1)
	for col, value := range patch {
		if err := checkColumn(col); err != nil {
			return err
		}
		if col == keyColumn || col == "id" {
			continue
		}
		updates[col] = value
	}
	// updated_at always changes so RowsAffected reflects a match on MySQL too
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Table(table).
		Where(clause.Eq{Column: clause.Column{Name: keyColumn}, Value: keyValue}).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update %s: %w", table, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update %s %s=%v: %w", table, keyColumn, keyValue, model.ErrNoSuchRow)
	}
	return nil
}

// Insert creates a row and echoes the stored values.
func (r *GormRepository) Insert(ctx context.Context, table string, row entity.Row) (entity.Row, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if !model.IsKnownTable(table) {
		return nil, fmt.Errorf("insert %s: %w", table, model.ErrUnknownTable)
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("insert %s: empty row", table)
	}

	values := make(map[string]interface{}, len(row)+2)
	for col, value := range row {
		if err := checkColumn(col); err != nil {
			return nil, err
		}
		values[col] = value
	}
	now := time.Now()
	if _, ok := values["created_at"]; !ok {
		values["created_at"] = now
	}
	if _, ok := values["updated_at"]; !ok {
		values["updated_at"] = now
	}

	if err := r.db.WithContext(ctx).Table(table).Create(values).Error; err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return entity.Row(values), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
