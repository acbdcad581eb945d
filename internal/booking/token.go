package booking

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTokenInvalid = errors.New("confirmation token not recognized")
	ErrTokenExpired = errors.New("confirmation token expired")
)

const tokenBytes = 32 // 256 bits of entropy

// TokenService issues and validates the opaque confirmation tokens that let a
// patient confirm or cancel one appointment without authentication.
type TokenService struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

func NewTokenService(repo Repository, loc *time.Location) *TokenService {
	return &TokenService{repo: repo, loc: loc, now: time.Now}
}

// Issue generates a fresh token from a cryptographically secure source. The
// value is opaque and carries no appointment data.
func (s *TokenService) Issue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Validate resolves a token to its appointment. A token for an appointment
// whose date has passed is rejected as expired regardless of stored state.
func (s *TokenService) Validate(ctx context.Context, token string) (*Appointment, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	appt, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("look up token: %w", err)
	}

	if appt.DateElapsed(s.now(), s.loc) {
		return nil, ErrTokenExpired
	}

	return appt, nil
}
