package zoom

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SDK roles.
const (
	RoleAttendee = 0
	RoleHost     = 1
)

const sdkSignatureTTL = time.Hour

// SDKSigner issues Meeting SDK join signatures.
type SDKSigner struct {
	key    string
	secret []byte
	now    func() time.Time
}

// NewSDKSigner creates a signer for the given SDK key and secret.
func NewSDKSigner(key, secret string) *SDKSigner {
	return &SDKSigner{key: key, secret: []byte(secret), now: time.Now}
}

// Signature returns an HS256 JWT for joining meetingNumber with role.
func (s *SDKSigner) Signature(meetingNumber string, role int) (string, error) {
	if s.key == "" || len(s.secret) == 0 {
		return "", errors.New("sdk key and secret are required")
	}
	if role != RoleAttendee && role != RoleHost {
		return "", fmt.Errorf("invalid sdk role %d", role)
	}
	iat := s.now().Add(-30 * time.Second)
	exp := iat.Add(sdkSignatureTTL)
	claims := jwt.MapClaims{
		"sdkKey":   s.key,
		"appKey":   s.key,
		"mn":       meetingNumber,
		"role":     role,
		"iat":      iat.Unix(),
		"exp":      exp.Unix(),
		"tokenExp": exp.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign sdk jwt: %w", err)
	}
	return signed, nil
}
