package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	domainuser "smajobb/internal/domain/user"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPasswordTooShort   = errors.New("auth: password must be at least 8 characters")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenIssuer interface {
	GenerateToken(userID, name string) (string, error)
}

// Service registers accounts and issues bearer tokens. Identity issuance is
// deliberately thin; the marketplace core only needs a stable user id and a
// display name.
type Service struct {
	Users     domainuser.Repository
	Passwords PasswordHasher
	Tokens    TokenIssuer
	Logger    *slog.Logger
}

type RegisterParams struct {
	Email    string
	Name     string
	Password string
}

type AuthResult struct {
	User  *domainuser.User
	Token string
}

func (s *Service) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	if utf8.RuneCountInString(params.Password) < 8 {
		return nil, ErrPasswordTooShort
	}
	email := domainuser.NormalizeEmail(params.Email)
	if existing, err := s.Users.ByEmail(ctx, email); err == nil && existing != nil {
		return nil, domainuser.ErrEmailAlreadyUsed
	}
	hash, err := s.Passwords.Hash(params.Password)
	if err != nil {
		return nil, err
	}
	u, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           domainuser.ID(uuid.NewString()),
		Email:        email,
		Name:         strings.TrimSpace(params.Name),
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Users.Save(ctx, u); err != nil {
		return nil, err
	}
	token, err := s.Tokens.GenerateToken(string(u.ID), u.Name)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user registered", "user_id", u.ID)
	}
	return &AuthResult{User: u, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.Users.ByEmail(ctx, domainuser.NormalizeEmail(email))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.Passwords.Compare(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	token, err := s.Tokens.GenerateToken(string(u.ID), u.Name)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: token}, nil
}
