package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"cloudpdf/internal/model"
)

type ThesisRepository struct {
	db *gorm.DB
}

func NewThesisRepository(db *gorm.DB) *ThesisRepository {
	return &ThesisRepository{db: db}
}

func (r *ThesisRepository) Create(ctx context.Context, thesis *model.Thesis) error {
	if err := r.db.WithContext(ctx).Create(thesis).Error; err != nil {
		return fmt.Errorf("create thesis failed: %w", err)
	}
	return nil
}

func (r *ThesisRepository) ListAll(ctx context.Context) ([]model.Thesis, error) {
	var list []model.Thesis
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list theses failed: %w", err)
	}
	return list, nil
}

func (r *ThesisRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Thesis, error) {
	var list []model.Thesis
	if err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list theses by owner failed: %w", err)
	}
	return list, nil
}

// Search matches query against title and summary. A nil ownerID searches every record.
func (r *ThesisRepository) Search(ctx context.Context, ownerID *uint, query string) ([]model.Thesis, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	q := r.db.WithContext(ctx).Where("(LOWER(title) LIKE ? OR LOWER(summary) LIKE ?)", pattern, pattern)
	if ownerID != nil {
		q = q.Where("user_id = ?", *ownerID)
	}
	var list []model.Thesis
	if err := q.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("search theses failed: %w", err)
	}
	return list, nil
}

func (r *ThesisRepository) FindByID(ctx context.Context, id uint) (*model.Thesis, error) {
	var thesis model.Thesis
	if err := r.db.WithContext(ctx).First(&thesis, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find thesis failed: %w", err)
	}
	return &thesis, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
