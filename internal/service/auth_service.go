package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService issues and validates staff session tokens
type AuthService struct {
	staffRepo core.StaffRepository
	jwtSecret string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(staffRepo core.StaffRepository, jwtSecret string, tokenTTL time.Duration, now func() time.Time) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{staffRepo: staffRepo, jwtSecret: jwtSecret, tokenTTL: tokenTTL, now: now}
}

// LoginWithPIN checks pin against the branch's active staff and returns a
// JWT for the matching user.
func (s *AuthService) LoginWithPIN(ctx context.Context, branchID, pin string) (string, *core.StaffUser, error) {
	if !isValidFourDigitPIN(pin) {
		return "", nil, fmt.Errorf("%w: PIN must be exactly 4 digits", core.ErrInvalidInput)
	}

	staff, err := s.staffRepo.GetActiveByBranch(ctx, branchID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch staff accounts: %w", err)
	}

	for _, user := range staff {
		if user.PinHash == "" {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PinHash), []byte(pin)); err == nil {
			token, tokenErr := s.generateJWT(user)
			if tokenErr != nil {
				return "", nil, fmt.Errorf("failed to generate token: %w", tokenErr)
			}
			return token, user, nil
		}
	}

	return "", nil, fmt.Errorf("%w: invalid PIN", core.ErrUnauthorized)
}

// HashPIN returns the bcrypt hash stored for a staff PIN
func HashPIN(pin string) (string, error) {
	if !isValidFourDigitPIN(pin) {
		return "", fmt.Errorf("%w: PIN must be exactly 4 digits", core.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash PIN: %w", err)
	}
	return string(hash), nil
}

func isValidFourDigitPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}

	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// generateJWT generates a JWT token for a staff user
func (s *AuthService) generateJWT(user *core.StaffUser) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id":   user.ID,
		"branch_id": user.BranchID,
		"name":      user.Name,
		"role":      user.Role,
		"exp":       now.Add(s.tokenTTL).Unix(),
		"iat":       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ValidateJWT validates a JWT token and returns the claims
func (s *AuthService) ValidateJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// GetStaff returns the staff user behind a validated token
func (s *AuthService) GetStaff(ctx context.Context, id string) (*core.StaffUser, error) {
	return s.staffRepo.GetByID(ctx, id)
}
