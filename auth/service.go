package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
)

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
}

// LoginResult bundles the token and domain party returned after a successful login.
type LoginResult struct {
	Token string
	Party Party
}

// Identity is what a verified token asserts about the caller.
type Identity struct {
	PartyID string
	Handle  string
	Role    Role
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new party account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Party, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	handle := strings.TrimSpace(req.Handle)
	if req.Email == "" || handle == "" {
		return nil, fmt.Errorf("auth: email and handle are required")
	}
	if strings.ContainsAny(handle, " \t\n") {
		return nil, fmt.Errorf("auth: handle must not contain whitespace")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleParty
	}
	if !isValidRole(role) {
		return nil, fmt.Errorf("auth: invalid role %q", role)
	}

	party, err := s.repo.CreateParty(ctx, CreatePartyParams{
		Handle:       handle,
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	return &party, nil
}

// Login authenticates a party and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	party, err := s.repo.GetPartyByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrPartyNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(party.PasswordHash), []byte(req.Password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(party)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token: token,
		Party: party,
	}, nil
}

// GetPartyByID retrieves party information by ID.
func (s *Service) GetPartyByID(ctx context.Context, partyID string) (*Party, error) {
	party, err := s.repo.GetPartyByID(ctx, partyID)
	if err != nil {
		return nil, err
	}
	return &party, nil
}

// VerifyToken validates a JWT token and returns the caller identity it asserts.
func (s *Service) VerifyToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		partyID, ok := claims["party_id"].(string)
		if !ok {
			return Identity{}, fmt.Errorf("auth: invalid party_id in token")
		}
		handle, ok := claims["handle"].(string)
		if !ok || handle == "" {
			return Identity{}, fmt.Errorf("auth: invalid handle in token")
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return Identity{}, fmt.Errorf("auth: invalid role in token")
		}
		role := Role(roleStr)
		if !isValidRole(role) {
			return Identity{}, fmt.Errorf("auth: invalid role %q in token", roleStr)
		}
		return Identity{PartyID: partyID, Handle: handle, Role: role}, nil
	}

	return Identity{}, fmt.Errorf("auth: invalid token")
}

// generateToken creates a JWT token for the party.
func (s *Service) generateToken(party Party) (string, error) {
	claims := jwt.MapClaims{
		"party_id": party.ID,
		"handle":   party.Handle,
		"role":     party.Role,
		"exp":      time.Now().Add(24 * time.Hour).Unix(), // Token expires in 24 hours
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleParty, RoleOperator:
		return true
	default:
		return false
	}
}
