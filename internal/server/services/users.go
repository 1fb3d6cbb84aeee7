package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ritw/internal/common"
	"github.com/dmitrijs2005/ritw/internal/cryptox"
	"github.com/dmitrijs2005/ritw/internal/logging"
	"github.com/dmitrijs2005/ritw/internal/server/auth"
	"github.com/dmitrijs2005/ritw/internal/server/models"
	"github.com/dmitrijs2005/ritw/internal/server/repositories/users"
)

// UserService holds the account flows: signing up, signing in and
// managing the signed-in account.
type UserService struct {
	users  users.Repository
	issuer *auth.Issuer
	logger logging.Logger
}

// verifyPassword is a seam for tests.
var verifyPassword = cryptox.VerifyPassword

// decoyVerifier stands in for the stored verifier of an unknown id so that
// both signin failures do the same work.
var decoyVerifier = cryptox.HashPassword("")

func NewUserService(repo users.Repository, issuer *auth.Issuer, logger logging.Logger) *UserService {
	return &UserService{
		users:  repo,
		issuer: issuer,
		logger: logger.With("module", "users"),
	}
}

func validate(dto models.UserCreateInfo) error {
	switch {
	case dto.ID == "":
		return fmt.Errorf("%w: id is required", common.ErrorValidation)
	case dto.Password == "":
		return fmt.Errorf("%w: password is required", common.ErrorValidation)
	}
	return nil
}

// Signup creates the account and returns a session cookie value for it.
// An existing id yields common.ErrorConflict and the stored record is not
// touched.
func (s *UserService) Signup(ctx context.Context, dto models.UserCreateInfo) (*models.User, string, error) {
	if err := validate(dto); err != nil {
		return nil, "", err
	}
	if dto.Name == "" {
		return nil, "", fmt.Errorf("%w: name is required", common.ErrorValidation)
	}

	user, err := s.users.Create(ctx, s.users.FromDTO(dto))
	if err != nil {
		return nil, "", err
	}

	cookie, _, err := s.issuer.GenerateToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("error generating token: %w", err)
	}

	s.logger.Info(ctx, "user signed up", "id", user.ID)
	return user, cookie, nil
}

// Signin checks the password of an existing account. Unknown ids yield
// common.ErrorNotFound, wrong passwords common.ErrorUnauthorized. Nothing
// is ever created here.
func (s *UserService) Signin(ctx context.Context, dto models.UserCreateInfo) (*models.User, string, error) {
	if err := validate(dto); err != nil {
		return nil, "", err
	}

	candidate := cryptox.HashPassword(dto.Password)

	stored, err := s.users.Read(ctx, dto.ID)
	if errors.Is(err, common.ErrorNotFound) {
		verifyPassword(decoyVerifier, candidate)
		return nil, "", err
	}
	if err != nil {
		return nil, "", err
	}

	if !verifyPassword(stored.Password, candidate) {
		return nil, "", common.ErrorUnauthorized
	}

	cookie, _, err := s.issuer.GenerateToken(stored.ID)
	if err != nil {
		return nil, "", fmt.Errorf("error generating token: %w", err)
	}

	s.logger.Info(ctx, "user signed in", "id", stored.ID)
	return stored, cookie, nil
}

// Authenticate resolves a cookie value to its account. Every failure is
// common.ErrorUnauthorized, wrapping the cause where there is one.
func (s *UserService) Authenticate(ctx context.Context, cookie string) (*models.User, error) {
	id, err := s.issuer.GetUserIDFromToken(cookie)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}

	user, err := s.users.Read(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", common.ErrorUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the password of id after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", common.ErrorValidation)
	}

	stored, err := s.users.Read(ctx, id)
	if err != nil {
		return err
	}
	if !verifyPassword(stored.Password, cryptox.HashPassword(current)) {
		return common.ErrorUnauthorized
	}

	updated := s.users.FromDTO(models.UserCreateInfo{ID: stored.ID, Name: stored.Name, Password: next})
	if err := s.users.Update(ctx, stored, updated); err != nil {
		return err
	}

	s.logger.Info(ctx, "password changed", "id", id)
	return nil
}

func (s *UserService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "account deleted", "id", id)
	return nil
}
