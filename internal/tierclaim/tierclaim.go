package tierclaim

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"vouch/internal/verification"
	id "vouch/pkg/domain"
	dErrors "vouch/pkg/domain-errors"
)

const (
	issuer   = "vouch"
	audience = "portal"
)

// Claims carries a user's verification tier as a signed, short-lived
// assertion for the portal.
type Claims struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
	jwt.RegisteredClaims
}

// Service mints and validates tier claims.
type Service struct {
	signingKey []byte
	ttl        time.Duration
}

func NewService(signingKey string, ttl time.Duration) *Service {
	return &Service{signingKey: []byte(signingKey), ttl: ttl}
}

// Issue signs a tier claim for the user valid for the configured TTL.
func (s *Service) Issue(userID id.UserID, tier verification.Tier, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID.String(),
		Tier:   string(tier),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Audience:  []string{audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Parse validates the token signature and expiry and returns the claimed
// user and tier. Any validation failure maps to an unauthorized error.
func (s *Service) Parse(tokenString string) (id.UserID, verification.Tier, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.UserID{}, "", dErrors.New(dErrors.CodeUnauthorized, "tier claim has expired")
		}
		return id.UserID{}, "", dErrors.New(dErrors.CodeUnauthorized, "invalid tier claim")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.UserID{}, "", dErrors.New(dErrors.CodeUnauthorized, "invalid tier claim")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return id.UserID{}, "", dErrors.New(dErrors.CodeUnauthorized, "invalid tier claim subject")
	}

	tier := verification.Tier(claims.Tier)
	switch tier {
	case verification.TierAnonymous, verification.TierNonVerified, verification.TierVerified:
	default:
		return id.UserID{}, "", dErrors.New(dErrors.CodeUnauthorized, "unknown tier in claim")
	}

	return userID, tier, nil
}
