package db

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"actpath-backend/internal/model"
)

// Migrate brings the schema up to date. It is safe to run repeatedly.
func Migrate(gdb *gorm.DB) error {
	m := gormigrate.New(gdb, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: clinics, users and the template catalog
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&model.Clinic{},
					&model.User{},
					&model.AssessmentTemplate{},
					&model.SessionTemplate{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("session_templates", "assessment_templates", "users", "clinics")
			},
		},

		// Migration 002: per-client session and assessment history
		{
			ID: "002_progress_history",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.SessionAttempt{}, &model.AssessmentSubmission{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("assessment_submissions", "session_attempts")
			},
		},

		// Migration 003: failed MFA attempt counter
		{
			ID: "003_mfa_failed_attempts",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&model.User{}, "MFAFailedAttempts") {
					return nil
				}
				return tx.Migrator().AddColumn(&model.User{}, "MFAFailedAttempts")
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropColumn(&model.User{}, "MFAFailedAttempts")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
