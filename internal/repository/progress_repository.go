package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"actpath-backend/internal/model"
)

// ProgressRepository persists a client's curriculum position and history.
// Every write is scoped to the rows or columns it changes; nothing replaces
// the whole client record.
type ProgressRepository interface {
	// Transaction runs fn against a repository bound to one transaction.
	Transaction(ctx context.Context, fn func(repo ProgressRepository) error) error

	// FindClient loads the client. With lock set the row is held
	// (SELECT ... FOR UPDATE) until the surrounding transaction ends.
	FindClient(ctx context.Context, clientID uint, lock bool) (*model.User, error)

	// UpsertSessionAttempt inserts the attempt or, when the client already
	// has one for the same session number, overwrites it in place.
	UpsertSessionAttempt(ctx context.Context, attempt *model.SessionAttempt) error

	// AdvanceSessionPointer moves current_session from `from` to from+1.
	// It reports false when the pointer was not at `from`.
	AdvanceSessionPointer(ctx context.Context, clientID uint, from int) (bool, error)

	CurrentSession(ctx context.Context, clientID uint) (int, error)

	AppendAssessment(ctx context.Context, submission *model.AssessmentSubmission) error

	// UpdateSnapshot stamps last_update and, when column is not empty,
	// overwrites that score column.
	UpdateSnapshot(ctx context.Context, clientID uint, column string, score float64, at time.Time) error

	SessionHistory(ctx context.Context, clientID uint) ([]model.SessionAttempt, error)
	AssessmentHistory(ctx context.Context, clientID uint) ([]model.AssessmentSubmission, error)
}

// attemptColumns are rewritten when a session is resubmitted.
var attemptColumns = []string{
	"session_title",
	"status",
	"recorded_at",
	"total_duration_minutes",
	"interruption_count",
	"mood_before",
	"mood_after",
	"reflections",
	"step_progress",
	"metadata",
	"updated_at",
}

type progressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) Transaction(ctx context.Context, fn func(repo ProgressRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&progressRepository{db: tx})
	})
}

func (r *progressRepository) FindClient(ctx context.Context, clientID uint, lock bool) (*model.User, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var user model.User
	if err := q.First(&user, clientID).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *progressRepository) UpsertSessionAttempt(ctx context.Context, attempt *model.SessionAttempt) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "session_number"}},
		DoUpdates: clause.AssignmentColumns(attemptColumns),
	}).Create(attempt).Error)
}

func (r *progressRepository) AdvanceSessionPointer(ctx context.Context, clientID uint, from int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND current_session = ?", clientID, from).
		Update("current_session", gorm.Expr("current_session + 1"))
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *progressRepository) CurrentSession(ctx context.Context, clientID uint) (int, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Select("id", "current_session").First(&user, clientID).Error; err != nil {
		return 0, translate(err)
	}
	return user.CurrentSession, nil
}

func (r *progressRepository) AppendAssessment(ctx context.Context, submission *model.AssessmentSubmission) error {
	return translate(r.db.WithContext(ctx).Create(submission).Error)
}

func (r *progressRepository) UpdateSnapshot(ctx context.Context, clientID uint, column string, score float64, at time.Time) error {
	updates := map[string]any{"snapshot_last_update": at}
	if column != "" {
		updates[column] = score
	}
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", clientID).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *progressRepository) SessionHistory(ctx context.Context, clientID uint) ([]model.SessionAttempt, error) {
	var attempts []model.SessionAttempt
	err := r.db.WithContext(ctx).Where("user_id = ?", clientID).Order("id asc").Find(&attempts).Error
	return attempts, translate(err)
}

func (r *progressRepository) AssessmentHistory(ctx context.Context, clientID uint) ([]model.AssessmentSubmission, error) {
	var submissions []model.AssessmentSubmission
	if err := r.db.WithContext(ctx).Where("user_id = ?", clientID).Order("id asc").Find(&submissions).Error; err != nil {
		return nil, translate(err)
	}
	if err := r.attachTemplates(ctx, submissions); err != nil {
		return nil, err
	}
	return submissions, nil
}

// attachTemplates loads the code and title of every referenced template
// in one query.
func (r *progressRepository) attachTemplates(ctx context.Context, submissions []model.AssessmentSubmission) error {
	seen := map[uint]bool{}
	var ids []uint
	for _, s := range submissions {
		if s.TemplateID != nil && !seen[*s.TemplateID] {
			seen[*s.TemplateID] = true
			ids = append(ids, *s.TemplateID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var templates []model.AssessmentTemplate
	if err := r.db.WithContext(ctx).Select("id", "code", "title").Where("id IN ?", ids).Find(&templates).Error; err != nil {
		return translate(err)
	}
	byID := make(map[uint]*model.TemplateSummary, len(templates))
	for _, t := range templates {
		byID[t.ID] = &model.TemplateSummary{ID: t.ID, Code: t.Code, Title: t.Title}
	}
	for i := range submissions {
		if id := submissions[i].TemplateID; id != nil {
			submissions[i].Template = byID[*id]
		}
	}
	return nil
}
