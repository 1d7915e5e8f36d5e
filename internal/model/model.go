package model

import (
	"time"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleTherapist  Role = "THERAPIST"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// IsStaff reports whether the role may read other users' clinical data.
func (r Role) IsStaff() bool {
	return r == RoleTherapist || r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) Valid() bool {
	return r == RoleClient || r.IsStaff()
}

type SessionStatus string

const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionPaused     SessionStatus = "PAUSED"
	SessionAbandoned  SessionStatus = "ABANDONED"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionInProgress, SessionCompleted, SessionPaused, SessionAbandoned:
		return true
	}
	return false
}

type Clinic struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"not null"`
	ContactEmail string    `json:"contactEmail" gorm:"not null;uniqueIndex"`
	Plan         string    `json:"plan" gorm:"default:'Basic'"`   // Basic, Professional, Enterprise
	Status       string    `json:"status" gorm:"default:'Setup'"` // Live, Setup, Review
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ClinicalSnapshot is the latest-value rollup of instrument scores.
// Fields are nil until the first submission of that family.
type ClinicalSnapshot struct {
	PCL5Total  *float64   `json:"pcl5Total" gorm:"column:pcl5_total"`
	DERSTotal  *float64   `json:"dersTotal" gorm:"column:ders_total"`
	AAQTotal   *float64   `json:"aaqTotal" gorm:"column:aaq_total"`
	LastUpdate *time.Time `json:"lastUpdate" gorm:"column:last_update"`
}

type User struct {
	ID                  uint             `json:"id" gorm:"primaryKey"`
	Name                string           `json:"name" gorm:"not null"`
	Email               string           `json:"email" gorm:"not null;uniqueIndex"`
	Password            string           `json:"-" gorm:"not null"`
	Role                Role             `json:"role" gorm:"type:varchar(16);default:'CLIENT';index:idx_users_clinic_role,priority:2"`
	License             string           `json:"license,omitempty"`
	ClinicID            *uint            `json:"clinicId" gorm:"index:idx_users_clinic_role,priority:1"`
	MFACode             string           `json:"-"`
	MFAExpiresAt        *time.Time       `json:"-"`
	MFAFailedAttempts   int              `json:"-" gorm:"not null;default:0"`
	PhoneNumber         string           `json:"phoneNumber,omitempty"`
	ProfileImage        string           `json:"profileImage,omitempty"`
	HasConsented        bool             `json:"hasConsented" gorm:"default:false"`
	ConsentTimestamp    *time.Time       `json:"consentTimestamp,omitempty"`
	CurrentSession      int              `json:"currentSession" gorm:"not null;default:1"`
	AssignedTherapistID *uint            `json:"assignedTherapistId,omitempty"`
	Snapshot            ClinicalSnapshot `json:"currentClinicalSnapshot" gorm:"embedded;embeddedPrefix:snapshot_"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// QuestionResponse is one answered item, shared by assessments and session steps.
type QuestionResponse struct {
	QuestionID   string     `json:"questionId"`
	QuestionText string     `json:"questionText"`
	Value        any        `json:"value"`
	Label        string     `json:"label,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

type StepProgress struct {
	StepID    string             `json:"stepId"`
	StepTitle string             `json:"stepTitle,omitempty"`
	Status    string             `json:"status,omitempty"` // VIEWED, STARTED, COMPLETED
	StartTime *time.Time         `json:"startTime,omitempty"`
	EndTime   *time.Time         `json:"endTime,omitempty"`
	Inputs    []QuestionResponse `json:"inputs,omitempty"`
}

// SessionAttempt is the latest recorded attempt of one curriculum session.
// (user_id, session_number) is unique; ID order is first-insertion order.
type SessionAttempt struct {
	ID                   uint                               `json:"-" gorm:"primaryKey"`
	UserID               uint                               `json:"-" gorm:"not null;uniqueIndex:idx_attempt_user_session,priority:1"`
	SessionNumber        int                                `json:"sessionNumber" gorm:"not null;uniqueIndex:idx_attempt_user_session,priority:2"`
	SessionTitle         string                             `json:"sessionTitle,omitempty"`
	Status               SessionStatus                      `json:"status" gorm:"type:varchar(16);not null"`
	RecordedAt           time.Time                          `json:"timestamp" gorm:"not null"`
	TotalDurationMinutes int                                `json:"totalDurationMinutes" gorm:"not null;default:0"`
	InterruptionCount    int                                `json:"interruptionCount" gorm:"not null;default:0"`
	MoodBefore           *float64                           `json:"moodBefore,omitempty"`
	MoodAfter            *float64                           `json:"moodAfter,omitempty"`
	Reflections          datatypes.JSONType[map[string]any] `json:"reflections"`
	StepProgress         datatypes.JSONSlice[StepProgress]  `json:"stepProgress"`
	Metadata             datatypes.JSONType[map[string]any] `json:"metadata"`
	CreatedAt            time.Time                          `json:"-"`
	UpdatedAt            time.Time                          `json:"-"`
}

// AssessmentSubmission is one append-only psychometric test record.
type AssessmentSubmission struct {
	ID             uint                                  `json:"-" gorm:"primaryKey"`
	RecordID       string                                `json:"id" gorm:"type:varchar(36);not null;uniqueIndex"`
	UserID         uint                                  `json:"-" gorm:"not null;index"`
	TemplateID     *uint                                 `json:"templateId"`
	TestType       string                                `json:"testType" gorm:"not null;index"`
	Items          datatypes.JSONSlice[QuestionResponse] `json:"items"`
	TotalScore     float64                               `json:"totalScore"`
	Interpretation string                                `json:"interpretation,omitempty"`
	CompletedAt    time.Time                             `json:"completedAt" gorm:"not null"`

	// Template is filled on history reads when TemplateID is set.
	Template *TemplateSummary `json:"template,omitempty" gorm:"-"`
}

// TemplateSummary identifies the template an assessment was taken from.
type TemplateSummary struct {
	ID    uint   `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

type AnswerOption struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

type TemplateQuestion struct {
	ID      string         `json:"id" yaml:"id"`
	Text    string         `json:"text" yaml:"text"`
	Type    string         `json:"type" yaml:"type"` // LIKERT, TEXT, MULTIPLE_CHOICE, BOOLEAN
	Options []AnswerOption `json:"options,omitempty" yaml:"options,omitempty"`
	Cluster string         `json:"cluster,omitempty" yaml:"cluster,omitempty"`
}

type AssessmentTemplate struct {
	ID          uint                                  `json:"id" gorm:"primaryKey"`
	Code        string                                `json:"code" gorm:"not null;uniqueIndex"`
	Title       string                                `json:"title" gorm:"not null"`
	Description string                                `json:"description"`
	Version     string                                `json:"version" gorm:"default:'1.0'"`
	Questions   datatypes.JSONSlice[TemplateQuestion] `json:"questions"`
	Active      bool                                  `json:"active" gorm:"not null"`
	CreatedAt   time.Time                             `json:"createdAt"`
	UpdatedAt   time.Time                             `json:"updatedAt"`
}

type TemplateStep struct {
	StepID string `json:"stepId" yaml:"stepId"`
	Title  string `json:"title" yaml:"title"`
	Type   string `json:"type" yaml:"type"` // INTRO, EXERCISE, QUESTIONNAIRE, OUTRO
}

type SessionTemplate struct {
	ID            uint                              `json:"id" gorm:"primaryKey"`
	SessionNumber int                               `json:"sessionNumber" gorm:"not null;uniqueIndex"`
	Title         string                            `json:"title" gorm:"not null"`
	ModuleKey     string                            `json:"moduleKey" gorm:"not null"`
	Steps         datatypes.JSONSlice[TemplateStep] `json:"steps"`
	CreatedAt     time.Time                         `json:"createdAt"`
	UpdatedAt     time.Time                         `json:"updatedAt"`
}
