package service

import (
	"context"
	"strings"
	"time"

	"actpath-backend/internal/model"
	"actpath-backend/internal/repository"
)

// ProfileUpdate lists the fields a user may change on their own profile.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Name         *string `json:"name"`
	PhoneNumber  *string `json:"phoneNumber"`
	ProfileImage *string `json:"profileImage"`
	HasConsented *bool   `json:"hasConsented"`
}

type ProfileService interface {
	GetProfile(ctx context.Context, userID uint) (*model.User, error)
	UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) (*model.User, error)
}

type profileService struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

func NewProfileService(userRepo repository.UserRepository) ProfileService {
	return &profileService{userRepo: userRepo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *profileService) GetProfile(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, classify(err, "user", "load user")
	}
	return user, nil
}

func (s *profileService) UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) (*model.User, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalid("name must not be empty")
		}
		updates["name"] = name
	}
	if in.PhoneNumber != nil {
		updates["phone_number"] = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.ProfileImage != nil {
		updates["profile_image"] = *in.ProfileImage
	}
	if in.HasConsented != nil {
		updates["has_consented"] = *in.HasConsented
		if *in.HasConsented {
			updates["consent_timestamp"] = s.now()
		} else {
			updates["consent_timestamp"] = nil
		}
	}

	if len(updates) > 0 {
		if err := s.userRepo.UpdateUser(ctx, userID, updates); err != nil {
			return nil, classify(err, "user", "update user")
		}
	}
	return s.GetProfile(ctx, userID)
}
