package twofa

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const challengeSubject = "2fa_challenge"

var ErrInvalidChallengeToken = errors.New("invalid challenge token")

// ChallengeSigner mints the short-lived token a client presents with its second factor.
// The token carries only the challenge id; the challenge itself lives in the Store.
type ChallengeSigner struct {
	secret []byte
}

func NewChallengeSigner(secret string) *ChallengeSigner {
	return &ChallengeSigner{secret: []byte(secret)}
}

func (s *ChallengeSigner) Sign(c Challenge) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        c.ID.String(),
		Subject:   challengeSubject,
		IssuedAt:  jwt.NewNumericDate(c.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge token: %w", err)
	}
	return signed, nil
}

// Parse verifies token at now and returns the challenge id
func (s *ChallengeSigner) Parse(token string, now time.Time) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(challengeSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return uuid.Nil, ErrInvalidChallengeToken
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return uuid.Nil, ErrInvalidChallengeToken
	}
	return id, nil
}
