package user

import (
	"context"
	"errors"
)

// UserModel a learner account
type UserModel struct {
	ID          string `json:"id"`
	Username    string `json:"username" validate:"required,min=3,max=64"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password,omitempty" validate:"required,min=8"`
	Coordinator bool   `json:"coordinator"` // bypasses sequential unlock gating
	LoginRetry  int    `json:"-"`
	LastLogin   int64  `json:"-"`
}

// ErrNoSuchUser failed to validate the credential
var ErrNoSuchUser = errors.New("No such user or password is incorrect")

// ErrDuplicatedUser unique key constraint violation
var ErrDuplicatedUser = errors.New("Username or email is already registered")

// ErrUserTooManyRetry user exceeded the login attempt quota
var ErrUserTooManyRetry = errors.New("Too many login attempts")

type UserRepository interface {
	FindByCredential(ctx context.Context, post *UserModel) (*UserModel, error)
	SaveUser(ctx context.Context, post *UserModel) error
	UpdateUser(ctx context.Context, post *UserModel) error
}

type UserUseCase interface {
	SignUp(ctx context.Context, post *UserModel) (*UserModel, error)
	Exists(ctx context.Context, post *UserModel) (bool, error)
}
