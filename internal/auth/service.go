package auth

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// Account roles. Operators run manual dispatch; provider accounts are linked
// to the provider they act as.
const (
	RoleOperator = "operator"
	RoleProvider = "provider"
)

type Account struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	Role        string
	ProviderID  *uuid.UUID
}

// Identity is the authenticated caller extracted from a session token.
type Identity struct {
	AccountID  uuid.UUID
	Role       string
	ProviderID *uuid.UUID
}

type Service interface {
	Register(ctx context.Context, email, password, displayName, role string, providerID *uuid.UUID) (*Account, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (*Identity, error)
}

type service struct {
	repo   *Repository
	secret []byte
}

func NewService(repo *Repository) *service {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "supersecretdev"
	}
	return &service{repo: repo, secret: []byte(secret)}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	ProviderID string `json:"provider_id,omitempty"`
}

func (s *service) Register(ctx context.Context, email, password, displayName, role string, providerID *uuid.UUID) (*Account, error) {
	if role != RoleOperator && role != RoleProvider {
		return nil, errors.New("invalid role")
	}
	if role == RoleProvider && providerID == nil {
		return nil, errors.New("provider accounts require a provider id")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acc, err := s.repo.Create(ctx, email, string(hash), displayName, role, providerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return acc, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	acc, hash, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}
	return s.issueToken(acc)
}

func (s *service) issueToken(acc *Account) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: acc.Role,
	}
	if acc.ProviderID != nil {
		c.ProviderID = acc.ProviderID.String()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, err
	}
	identity := &Identity{AccountID: id, Role: c.Role}
	if c.ProviderID != "" {
		pid, err := uuid.Parse(c.ProviderID)
		if err != nil {
			return nil, err
		}
		identity.ProviderID = &pid
	}
	return identity, nil
}
