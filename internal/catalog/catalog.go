// Package catalog holds the built-in ACT curriculum and assessment
// instruments, embedded as YAML and loaded into the template tables.
package catalog

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"actpath-backend/internal/model"
	"actpath-backend/internal/repository"
)

//go:embed catalog.yaml
var embedded []byte

type Catalog struct {
	Assessments []model.AssessmentTemplate
	Sessions    []model.SessionTemplate
}

type document struct {
	Assessments []assessmentEntry `yaml:"assessments"`
	Sessions    []sessionEntry    `yaml:"sessions"`
}

type assessmentEntry struct {
	Code        string               `yaml:"code"`
	Title       string               `yaml:"title"`
	Description string               `yaml:"description"`
	Version     string               `yaml:"version"`
	Inactive    bool                 `yaml:"inactive"`
	Type        string               `yaml:"type"`
	Options     []model.AnswerOption `yaml:"options"`
	Clusters    []clusterRange       `yaml:"clusters"`
	Questions   []string             `yaml:"questions"`
}

type clusterRange struct {
	Cluster string `yaml:"cluster"`
	From    int    `yaml:"from"`
	To      int    `yaml:"to"`
}

type sessionEntry struct {
	SessionNumber int                  `yaml:"sessionNumber"`
	Title         string               `yaml:"title"`
	ModuleKey     string               `yaml:"moduleKey"`
	Steps         []model.TemplateStep `yaml:"steps"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{}
	codes := map[string]bool{}
	for _, e := range doc.Assessments {
		if e.Code == "" || e.Title == "" {
			return nil, fmt.Errorf("assessment template needs a code and a title")
		}
		if codes[e.Code] {
			return nil, fmt.Errorf("duplicate assessment template %q", e.Code)
		}
		codes[e.Code] = true
		c.Assessments = append(c.Assessments, e.template())
	}

	for i, e := range doc.Sessions {
		if e.SessionNumber != i+1 {
			return nil, fmt.Errorf("session %d is out of order, want %d", e.SessionNumber, i+1)
		}
		if e.Title == "" || e.ModuleKey == "" {
			return nil, fmt.Errorf("session %d needs a title and a module key", e.SessionNumber)
		}
		c.Sessions = append(c.Sessions, model.SessionTemplate{
			SessionNumber: e.SessionNumber,
			Title:         e.Title,
			ModuleKey:     e.ModuleKey,
			Steps:         e.Steps,
		})
	}
	return c, nil
}

func (e assessmentEntry) template() model.AssessmentTemplate {
	version := e.Version
	if version == "" {
		version = "1.0"
	}
	questions := make([]model.TemplateQuestion, len(e.Questions))
	for i, text := range e.Questions {
		q := model.TemplateQuestion{
			ID:      fmt.Sprintf("q%d", i+1),
			Text:    text,
			Type:    e.Type,
			Options: append([]model.AnswerOption(nil), e.Options...),
		}
		for _, r := range e.Clusters {
			if i+1 >= r.From && i+1 <= r.To {
				q.Cluster = r.Cluster
			}
		}
		questions[i] = q
	}
	return model.AssessmentTemplate{
		Code:        e.Code,
		Title:       e.Title,
		Description: e.Description,
		Version:     version,
		Questions:   questions,
		Active:      !e.Inactive,
	}
}

// Seed upserts every template. Running it twice leaves one row per code
// and session number.
func (c *Catalog) Seed(ctx context.Context, repo repository.TemplateRepository) error {
	for i := range c.Assessments {
		if err := repo.UpsertAssessmentTemplate(ctx, &c.Assessments[i]); err != nil {
			return fmt.Errorf("seed assessment template %s: %w", c.Assessments[i].Code, err)
		}
	}
	for i := range c.Sessions {
		if err := repo.UpsertSessionTemplate(ctx, &c.Sessions[i]); err != nil {
			return fmt.Errorf("seed session template %d: %w", c.Sessions[i].SessionNumber, err)
		}
	}
	log.Info().
		Int("assessments", len(c.Assessments)).
		Int("sessions", len(c.Sessions)).
		Msg("template catalog seeded")
	return nil
}
