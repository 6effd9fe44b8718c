package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/ids"
)

var (
	ErrAlreadyExists = apierr.Duplicate("email already registered")
	ErrAuthFailed    = errors.New("authentication failed")
)

const minPasswordLen = 8

type AuthService interface {
	Register(ctx context.Context, email, password, name string) (*Account, error)
	Login(ctx context.Context, email, password string) (string, *Account, error)
}

type Service struct {
	store  AccountStore
	secret []byte
	ttl    time.Duration
	clock  ids.Clock
	id     ids.IDGen
}

func NewService(store AccountStore, secret []byte, ttl time.Duration) *Service {
	return &Service{
		store:  store,
		secret: secret,
		ttl:    ttl,
		clock:  ids.RealClock{},
		id:     ids.NewULIDGen(),
	}
}

func (s *Service) Register(ctx context.Context, email, password, name string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apierr.Invalid("invalid email")
	}
	if len(password) < minPasswordLen {
		return nil, apierr.Invalid("password must be at least 8 characters")
	}
	if name == "" {
		return nil, apierr.Invalid("name is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	a := &Account{
		ID:           s.id.NewULID(now),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		Role:         "user",
		Status:       "active",
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, *Account, error) {
	acct, err := s.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, err
	}
	if acct == nil {
		return "", nil, ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrAuthFailed
	}
	if acct.Status != "active" {
		return "", nil, apierr.Forbidden("account is " + acct.Status)
	}

	token, err := IssueToken(s.secret, acct.ID, acct.Role, s.clock.Now().Add(s.ttl))
	if err != nil {
		return "", nil, err
	}
	return token, acct, nil
}

func IssueToken(secret []byte, userID, role string, exp time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
	})
	return token.SignedString(secret)
}
