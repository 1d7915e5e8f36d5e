package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"actpath-backend/internal/model"
)

// TemplateRepository is the read side of the template catalog plus the
// upserts used by seeding.
type TemplateRepository interface {
	GetAssessmentTemplateByCode(ctx context.Context, code string, activeOnly bool) (*model.AssessmentTemplate, error)
	GetAssessmentTemplateByID(ctx context.Context, id uint) (*model.AssessmentTemplate, error)
	GetSessionTemplateByNumber(ctx context.Context, sessionNumber int) (*model.SessionTemplate, error)
	ListSessionTemplates(ctx context.Context) ([]model.SessionTemplate, error)
	UpsertAssessmentTemplate(ctx context.Context, tmpl *model.AssessmentTemplate) error
	UpsertSessionTemplate(ctx context.Context, tmpl *model.SessionTemplate) error
}

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) GetAssessmentTemplateByCode(ctx context.Context, code string, activeOnly bool) (*model.AssessmentTemplate, error) {
	var tmpl model.AssessmentTemplate
	q := r.db.WithContext(ctx).Where("code = ?", code)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.First(&tmpl).Error; err != nil {
		return nil, translate(err)
	}
	return &tmpl, nil
}

func (r *templateRepository) GetAssessmentTemplateByID(ctx context.Context, id uint) (*model.AssessmentTemplate, error) {
	var tmpl model.AssessmentTemplate
	if err := r.db.WithContext(ctx).First(&tmpl, id).Error; err != nil {
		return nil, translate(err)
	}
	return &tmpl, nil
}

func (r *templateRepository) GetSessionTemplateByNumber(ctx context.Context, sessionNumber int) (*model.SessionTemplate, error) {
	var tmpl model.SessionTemplate
	if err := r.db.WithContext(ctx).Where("session_number = ?", sessionNumber).First(&tmpl).Error; err != nil {
		return nil, translate(err)
	}
	return &tmpl, nil
}

func (r *templateRepository) ListSessionTemplates(ctx context.Context) ([]model.SessionTemplate, error) {
	var templates []model.SessionTemplate
	err := r.db.WithContext(ctx).Order("session_number asc").Find(&templates).Error
	return templates, translate(err)
}

func (r *templateRepository) UpsertAssessmentTemplate(ctx context.Context, tmpl *model.AssessmentTemplate) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		UpdateAll: true,
	}).Create(tmpl).Error)
}

func (r *templateRepository) UpsertSessionTemplate(ctx context.Context, tmpl *model.SessionTemplate) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_number"}},
		UpdateAll: true,
	}).Create(tmpl).Error)
}
