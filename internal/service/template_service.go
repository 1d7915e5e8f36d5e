package service

import (
	"context"
	"strings"

	"actpath-backend/internal/model"
	"actpath-backend/internal/repository"
)

// TemplateService serves the read-only template catalog.
type TemplateService interface {
	// GetAssessmentTemplate returns the active template with the given code.
	GetAssessmentTemplate(ctx context.Context, code string) (*model.AssessmentTemplate, error)
	GetSessionTemplate(ctx context.Context, sessionNumber int) (*model.SessionTemplate, error)
	ListSessionTemplates(ctx context.Context) ([]model.SessionTemplate, error)
}

type templateService struct {
	templateRepo repository.TemplateRepository
}

func NewTemplateService(templateRepo repository.TemplateRepository) TemplateService {
	return &templateService{templateRepo: templateRepo}
}

func (s *templateService) GetAssessmentTemplate(ctx context.Context, code string) (*model.AssessmentTemplate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("template code is required")
	}
	tmpl, err := s.templateRepo.GetAssessmentTemplateByCode(ctx, code, true)
	if err != nil {
		return nil, classify(err, "assessment template", "load assessment template")
	}
	return tmpl, nil
}

func (s *templateService) GetSessionTemplate(ctx context.Context, sessionNumber int) (*model.SessionTemplate, error) {
	if sessionNumber < 1 {
		return nil, invalid("sessionNumber must be a positive integer")
	}
	tmpl, err := s.templateRepo.GetSessionTemplateByNumber(ctx, sessionNumber)
	if err != nil {
		return nil, classify(err, "session template", "load session template")
	}
	return tmpl, nil
}

func (s *templateService) ListSessionTemplates(ctx context.Context) ([]model.SessionTemplate, error) {
	templates, err := s.templateRepo.ListSessionTemplates(ctx)
	if err != nil {
		return nil, classify(err, "session template", "list session templates")
	}
	return templates, nil
}
