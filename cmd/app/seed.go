package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
	"gorm.io/gorm"

	"actpath-backend/internal/catalog"
	"actpath-backend/internal/db"
	"actpath-backend/internal/model"
	"actpath-backend/internal/repository"
	"actpath-backend/internal/service"
)

// demoPassword is shared by every demo account.
const demoPassword = "password123"

type seedOptions struct {
	Demo       bool
	AdminEmail string
	AdminName  string
}

func newSeedCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the template catalog and optional demo data",
		Long: `Upsert the built-in curriculum (12 session templates) and the
assessment instruments (PDEQ, PCL-5, DERS-18, AAQ-II).

Seeding is idempotent: templates are upserted by code and session number,
and existing users are left untouched.

Example:
  actpath seed
  actpath seed --demo
  actpath seed --admin-email ops@clinic.example`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := openDB(rootOpts.cfg)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			if err := db.Migrate(gdb); err != nil {
				return err
			}
			return runSeed(cmd.Context(), gdb, rootOpts.cfg.Curriculum.SessionCount, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Demo, "demo", false, "add a demo clinic, client and staff accounts")
	cmd.Flags().StringVar(&opts.AdminEmail, "admin-email", "", "create a SUPER_ADMIN with this email; the password is read from the terminal")
	cmd.Flags().StringVar(&opts.AdminName, "admin-name", "System Admin", "display name for --admin-email")

	return cmd
}

func runSeed(ctx context.Context, gdb *gorm.DB, sessionCount int, opts *seedOptions) error {
	c, err := catalog.Default()
	if err != nil {
		return err
	}
	templateRepo := repository.NewTemplateRepository(gdb)
	if err := c.Seed(ctx, templateRepo); err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(gdb)
	if opts.Demo {
		progress := service.NewProgressService(repository.NewProgressRepository(gdb), templateRepo,
			service.WithSessionCount(sessionCount))
		if err := seedDemo(ctx, userRepo, templateRepo, progress); err != nil {
			return err
		}
	}

	if opts.AdminEmail != "" {
		password, err := readPassword()
		if err != nil {
			return err
		}
		if _, err := ensureUser(ctx, userRepo, &model.User{
			Name:         opts.AdminName,
			Email:        strings.ToLower(strings.TrimSpace(opts.AdminEmail)),
			Role:         model.RoleSuperAdmin,
			HasConsented: true,
		}, password); err != nil {
			return err
		}
	}

	log.Info().Msg("database seeding completed")
	return nil
}

func seedDemo(ctx context.Context, userRepo repository.UserRepository, templateRepo repository.TemplateRepository, progress service.ProgressService) error {
	clinic := &model.Clinic{
		Name:         "Central Wellness Clinic",
		ContactEmail: "admin@centralwellness.example",
		Plan:         "Professional",
		Status:       "Live",
	}
	if err := userRepo.EnsureClinic(ctx, clinic); err != nil {
		return fmt.Errorf("seed clinic: %w", err)
	}

	now := time.Now().UTC()
	client, err := ensureUser(ctx, userRepo, &model.User{
		Name:             "Clinical Test Account",
		Email:            "test@actpath.example",
		Role:             model.RoleClient,
		ClinicID:         &clinic.ID,
		HasConsented:     true,
		ConsentTimestamp: &now,
	}, demoPassword)
	if err != nil {
		return err
	}

	staff := []*model.User{
		{Name: "Dr. Sarah Smith", Email: "sarah@clinic.example", Role: model.RoleTherapist, ClinicID: &clinic.ID, HasConsented: true},
		{Name: "System Admin", Email: "super@actpath.example", Role: model.RoleSuperAdmin, HasConsented: true},
	}
	var therapistID uint
	for _, u := range staff {
		created, err := ensureUser(ctx, userRepo, u, demoPassword)
		if err != nil {
			return err
		}
		if created.Role == model.RoleTherapist {
			therapistID = created.ID
		}
	}
	if client.AssignedTherapistID == nil && therapistID != 0 {
		if err := userRepo.UpdateUser(ctx, client.ID, map[string]any{"assigned_therapist_id": therapistID}); err != nil {
			return fmt.Errorf("assign therapist: %w", err)
		}
	}

	return seedDemoHistory(ctx, client, templateRepo, progress)
}

// seedDemoHistory gives a fresh demo client one completed session and a
// PCL-5 result. Clients that already have history are skipped.
func seedDemoHistory(ctx context.Context, client *model.User, templateRepo repository.TemplateRepository, progress service.ProgressService) error {
	history, err := progress.SessionHistory(ctx, client.ID)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		return nil
	}

	start := time.Now().UTC().Add(-22 * time.Minute)
	end := time.Now().UTC()
	moodBefore, moodAfter := 3.0, 4.0
	if _, err := progress.RecordSessionCompletion(ctx, client.ID, service.SessionSubmission{
		SessionNumber: 1,
		SessionTitle:  "Creative Hopelessness",
		Status:        model.SessionCompleted,
		MoodBefore:    &moodBefore,
		MoodAfter:     &moodAfter,
		Reflections:   map[string]any{"coreCost": "Social Isolation"},
		StepProgress: []model.StepProgress{
			{StepID: "mood", StepTitle: "Mood Check-in", Status: "COMPLETED", StartTime: &start},
		},
		StartTime: &start,
		EndTime:   &end,
	}); err != nil {
		return fmt.Errorf("seed session history: %w", err)
	}

	tmpl, err := templateRepo.GetAssessmentTemplateByCode(ctx, "PCL5-V1", true)
	if err != nil {
		return fmt.Errorf("load PCL5 template: %w", err)
	}
	total := 42.0
	if _, err := progress.RecordAssessmentSubmission(ctx, client.ID, service.AssessmentInput{
		TemplateID: &tmpl.ID,
		TestType:   tmpl.Code,
		Items: []model.QuestionResponse{
			{QuestionID: "q1", QuestionText: tmpl.Questions[0].Text, Value: 3, Label: "Quite a bit"},
			{QuestionID: "q2", QuestionText: tmpl.Questions[1].Text, Value: 2, Label: "Moderately"},
		},
		TotalScore: &total,
	}); err != nil {
		return fmt.Errorf("seed assessment history: %w", err)
	}
	return nil
}

// ensureUser creates u with the given password unless the email is taken,
// and returns the stored user either way.
func ensureUser(ctx context.Context, userRepo repository.UserRepository, u *model.User, password string) (*model.User, error) {
	existing, err := userRepo.GetUserByEmail(ctx, u.Email)
	if err == nil {
		log.Info().Str("email", u.Email).Msg("user exists, skipping")
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("look up %s: %w", u.Email, err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.Password = string(hashed)
	if u.CurrentSession == 0 {
		u.CurrentSession = 1
	}
	if err := userRepo.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create %s: %w", u.Email, err)
	}
	log.Info().Str("email", u.Email).Str("role", string(u.Role)).Msg("user created")
	return u, nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--admin-email needs an interactive terminal to read the password")
	}

	fmt.Fprint(os.Stderr, "Admin password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	return string(first), nil
}
