package sql

import (
	"fmt"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"regexp"

	"gorm.io/gorm"
)

var columnNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// GormRepository implements model.Repository using GORM
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new repository instance
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

var _ model.Repository = (*GormRepository)(nil)

func (r *GormRepository) ready() error {
	if r == nil || r.db == nil {
		return model.ErrRepositoryNotReady
	}
	return nil
}

// checkColumn rejects identifiers that could not be a plain column name.
func checkColumn(name string) error {
	if !columnNamePattern.MatchString(name) {
		return fmt.Errorf("invalid column name %q", name)
	}
	return nil
}

// calculatePagination calculates pagination metrics
func (r *GormRepository) calculatePagination(totalCount int64, page, pageSize int) *entity.Meta {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}

	return &entity.Meta{
		Total:    totalCount,
		Page:     int64(page),
		PageSize: int64(pageSize),
	}
}
