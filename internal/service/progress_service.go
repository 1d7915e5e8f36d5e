package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"actpath-backend/internal/model"
	"actpath-backend/internal/repository"
	"actpath-backend/utilities"
)

// Events published by the progress tracker.
const (
	EventSessionRecorded    = "session_recorded"
	EventAssessmentRecorded = "assessment_recorded"
)

// DefaultSessionCount is the length of the ACT curriculum.
const DefaultSessionCount = 12

// SessionSubmission is a completed (or paused, abandoned...) session as sent
// by the client.
type SessionSubmission struct {
	SessionNumber        int
	SessionTitle         string
	Status               model.SessionStatus
	Timestamp            *time.Time
	MoodBefore           *float64
	MoodAfter            *float64
	Reflections          map[string]any
	StepProgress         []model.StepProgress
	Metadata             map[string]any
	InterruptionCount    int
	StartTime            *time.Time
	EndTime              *time.Time
	TotalDurationMinutes *int
}

type SessionResult struct {
	Duration    int `json:"duration"`
	NextSession int `json:"nextSession"`
}

type AssessmentInput struct {
	TemplateID     *uint
	TestType       string
	Items          []model.QuestionResponse
	TotalScore     *float64
	Interpretation string
}

type AssessmentResult struct {
	Snapshot        model.ClinicalSnapshot `json:"snapshot"`
	HistoryRecordID string                 `json:"historyRecordId"`
}

// SessionRecordedEvent is the payload of EventSessionRecorded.
type SessionRecordedEvent struct {
	ClientID      uint
	SessionNumber int
	Status        model.SessionStatus
	Advanced      bool
	NextSession   int
}

// AssessmentRecordedEvent is the payload of EventAssessmentRecorded.
type AssessmentRecordedEvent struct {
	ClientID        uint
	HistoryRecordID string
	TestType        string
	Family          string
	TotalScore      float64
}

// ProgressService tracks a client's position in the curriculum and their
// session and assessment history.
//
// Retrying RecordSessionCompletion is safe: a resubmission replaces the
// attempt with the same session number. Retrying RecordAssessmentSubmission
// is not: every call appends a new history row and rewrites the snapshot.
type ProgressService interface {
	RecordSessionCompletion(ctx context.Context, clientID uint, sub SessionSubmission) (*SessionResult, error)
	RecordAssessmentSubmission(ctx context.Context, clientID uint, in AssessmentInput) (*AssessmentResult, error)
	SessionHistory(ctx context.Context, clientID uint) ([]model.SessionAttempt, error)
	AssessmentHistory(ctx context.Context, clientID uint) ([]model.AssessmentSubmission, error)
}

type ProgressOption func(*progressService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProgressOption {
	return func(s *progressService) { s.now = now }
}

// WithSessionCount sets the number of sessions in the curriculum.
func WithSessionCount(n int) ProgressOption {
	return func(s *progressService) {
		if n > 0 {
			s.sessionCount = n
		}
	}
}

// WithEventBus publishes tracker events on bus.
func WithEventBus(bus *utilities.EventBus) ProgressOption {
	return func(s *progressService) { s.bus = bus }
}

type progressService struct {
	progressRepo repository.ProgressRepository
	templateRepo repository.TemplateRepository
	bus          *utilities.EventBus
	now          func() time.Time
	sessionCount int
}

func NewProgressService(progressRepo repository.ProgressRepository, templateRepo repository.TemplateRepository, opts ...ProgressOption) ProgressService {
	s := &progressService{
		progressRepo: progressRepo,
		templateRepo: templateRepo,
		now:          func() time.Time { return time.Now().UTC() },
		sessionCount: DefaultSessionCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveDuration picks the session length in minutes: an explicit non-zero
// value wins, then endTime-startTime rounded to the nearest minute, then 0.
func ResolveDuration(explicit *int, start, end *time.Time) (int, error) {
	if explicit != nil && *explicit != 0 {
		if *explicit < 0 {
			return 0, invalid("totalDurationMinutes must not be negative")
		}
		return *explicit, nil
	}
	if start != nil && end != nil {
		diff := end.Sub(*start)
		if diff < 0 {
			return 0, invalid("endTime must not be before startTime")
		}
		return int(math.Round(float64(diff.Milliseconds()) / 60000)), nil
	}
	return 0, nil
}

func (s *progressService) validateSession(sub SessionSubmission) error {
	if sub.SessionNumber < 1 || sub.SessionNumber > s.sessionCount {
		return invalid("sessionNumber must be between 1 and %d", s.sessionCount)
	}
	if !sub.Status.Valid() {
		return invalid("status must be one of IN_PROGRESS, COMPLETED, PAUSED, ABANDONED")
	}
	if sub.InterruptionCount < 0 {
		return invalid("interruptionCount must not be negative")
	}
	return nil
}

func (s *progressService) RecordSessionCompletion(ctx context.Context, clientID uint, sub SessionSubmission) (*SessionResult, error) {
	if err := s.validateSession(sub); err != nil {
		return nil, err
	}
	duration, err := ResolveDuration(sub.TotalDurationMinutes, sub.StartTime, sub.EndTime)
	if err != nil {
		return nil, err
	}

	recordedAt := s.now()
	if sub.Timestamp != nil {
		recordedAt = sub.Timestamp.UTC()
	}

	attempt := &model.SessionAttempt{
		UserID:               clientID,
		SessionNumber:        sub.SessionNumber,
		SessionTitle:         sub.SessionTitle,
		Status:               sub.Status,
		RecordedAt:           recordedAt,
		TotalDurationMinutes: duration,
		InterruptionCount:    sub.InterruptionCount,
		MoodBefore:           sub.MoodBefore,
		MoodAfter:            sub.MoodAfter,
		Reflections:          datatypes.NewJSONType(sub.Reflections),
		StepProgress:         sub.StepProgress,
		Metadata:             datatypes.NewJSONType(sub.Metadata),
	}

	var (
		result   SessionResult
		advanced bool
	)
	err = s.progressRepo.Transaction(ctx, func(tx repository.ProgressRepository) error {
		client, err := tx.FindClient(ctx, clientID, true)
		if err != nil {
			return err
		}
		if err := tx.UpsertSessionAttempt(ctx, attempt); err != nil {
			return err
		}

		next := client.CurrentSession
		if sub.Status == model.SessionCompleted && client.CurrentSession == sub.SessionNumber {
			advanced, err = tx.AdvanceSessionPointer(ctx, clientID, sub.SessionNumber)
			if err != nil {
				return err
			}
			if next, err = tx.CurrentSession(ctx, clientID); err != nil {
				return err
			}
		}

		result = SessionResult{Duration: duration, NextSession: next}
		return nil
	})
	if err != nil {
		return nil, classify(err, "user", "save session")
	}

	log.Debug().
		Uint("client_id", clientID).
		Int("session", sub.SessionNumber).
		Str("status", string(sub.Status)).
		Bool("advanced", advanced).
		Int("next_session", result.NextSession).
		Msg("session recorded")

	s.bus.Publish(EventSessionRecorded, SessionRecordedEvent{
		ClientID:      clientID,
		SessionNumber: sub.SessionNumber,
		Status:        sub.Status,
		Advanced:      advanced,
		NextSession:   result.NextSession,
	})
	return &result, nil
}

func (s *progressService) RecordAssessmentSubmission(ctx context.Context, clientID uint, in AssessmentInput) (*AssessmentResult, error) {
	testType := strings.TrimSpace(in.TestType)
	if testType == "" {
		return nil, invalid("testType is required")
	}
	if in.TotalScore == nil {
		return nil, invalid("totalScore is required")
	}
	score := *in.TotalScore
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, invalid("totalScore must be a finite number")
	}

	// Looked up before the transaction opens: on SQLite the transaction
	// holds the only connection.
	if in.TemplateID != nil {
		if _, err := s.templateRepo.GetAssessmentTemplateByID(ctx, *in.TemplateID); err != nil {
			return nil, classify(err, "assessment template", "load assessment template")
		}
	}

	inst, known := LookupInstrument(testType)
	if !known {
		log.Warn().Str("test_type", testType).Msg("unrecognized instrument family, snapshot scores unchanged")
	}

	items := in.Items
	if items == nil {
		items = []model.QuestionResponse{}
	}
	now := s.now()
	submission := &model.AssessmentSubmission{
		RecordID:       uuid.NewString(),
		UserID:         clientID,
		TemplateID:     in.TemplateID,
		TestType:       testType,
		Items:          items,
		TotalScore:     score,
		Interpretation: in.Interpretation,
		CompletedAt:    now,
	}

	var snapshot model.ClinicalSnapshot
	err := s.progressRepo.Transaction(ctx, func(tx repository.ProgressRepository) error {
		if _, err := tx.FindClient(ctx, clientID, true); err != nil {
			return err
		}
		if err := tx.AppendAssessment(ctx, submission); err != nil {
			return err
		}
		if err := tx.UpdateSnapshot(ctx, clientID, inst.SnapshotColumn, score, now); err != nil {
			return err
		}
		client, err := tx.FindClient(ctx, clientID, false)
		if err != nil {
			return err
		}
		snapshot = client.Snapshot
		return nil
	})
	if err != nil {
		return nil, classify(err, "user", "save assessment")
	}

	log.Debug().
		Uint("client_id", clientID).
		Str("test_type", testType).
		Str("record_id", submission.RecordID).
		Msg("assessment recorded")

	s.bus.Publish(EventAssessmentRecorded, AssessmentRecordedEvent{
		ClientID:        clientID,
		HistoryRecordID: submission.RecordID,
		TestType:        testType,
		Family:          inst.Family,
		TotalScore:      score,
	})
	return &AssessmentResult{Snapshot: snapshot, HistoryRecordID: submission.RecordID}, nil
}

func (s *progressService) SessionHistory(ctx context.Context, clientID uint) ([]model.SessionAttempt, error) {
	if _, err := s.progressRepo.FindClient(ctx, clientID, false); err != nil {
		return nil, classify(err, "user", "load user")
	}
	history, err := s.progressRepo.SessionHistory(ctx, clientID)
	if err != nil {
		return nil, classify(err, "user", "load session history")
	}
	return history, nil
}

func (s *progressService) AssessmentHistory(ctx context.Context, clientID uint) ([]model.AssessmentSubmission, error) {
	if _, err := s.progressRepo.FindClient(ctx, clientID, false); err != nil {
		return nil, classify(err, "user", "load user")
	}
	history, err := s.progressRepo.AssessmentHistory(ctx, clientID)
	if err != nil {
		return nil, classify(err, "user", "load assessment history")
	}
	return history, nil
}
