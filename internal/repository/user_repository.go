package repository

import (
	"context"

	"gorm.io/gorm"

	"actpath-backend/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id uint) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, id uint, updates map[string]any) error
	EnsureClinic(ctx context.Context, clinic *model.Clinic) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) CreateUser(ctx context.Context, user *model.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepository) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UpdateUser writes only the given columns.
func (r *userRepository) UpdateUser(ctx context.Context, id uint, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureClinic loads the clinic with the same contact email or creates it.
func (r *userRepository) EnsureClinic(ctx context.Context, clinic *model.Clinic) error {
	return translate(r.db.WithContext(ctx).
		Where(model.Clinic{ContactEmail: clinic.ContactEmail}).
		Attrs(model.Clinic{Name: clinic.Name, Plan: clinic.Plan, Status: clinic.Status}).
		FirstOrCreate(clinic).Error)
}
