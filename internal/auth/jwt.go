package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"pumptrack/internal/entity"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer  = "pumptrack"
	defaultSession = 12 * time.Hour
	clockLeeway    = 30 * time.Second
)

var (
	// ErrSessionExpired 令牌已过期，需要重新登录
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidToken 令牌格式、签名或签发方不正确
	ErrInvalidToken = errors.New("invalid token")
	// ErrStaleSession 密码已修改，旧令牌作废
	ErrStaleSession = errors.New("session revoked by password change")
)

// Claims carried by a dashboard session token.
type Claims struct {
	UserID uint   `json:"uid"`
	Login  string `json:"login"`
	Role   string `json:"role"`
	// Stamp ties the token to the password it was issued against.
	Stamp string `json:"stp"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens with HS256.
type Manager struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewManager(secret, issuer string, expiry time.Duration) (*Manager, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if expiry <= 0 {
		expiry = defaultSession
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	return &Manager{secret: []byte(trimmed), issuer: issuer, expiry: expiry, now: time.Now}, nil
}

// SessionStamp fingerprints the stored password hash. Tokens issued before a
// password change carry a different stamp.
func SessionStamp(user *entity.DbUser) string {
	if user == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(user.PasswordHash))
	return hex.EncodeToString(sum[:6])
}

// GenerateToken issues a session for user and returns it with its expiry.
func (m *Manager) GenerateToken(user *entity.DbUser) (string, time.Time, error) {
	if user == nil || user.ID == 0 {
		return "", time.Time{}, errors.New("invalid user for token generation")
	}
	issued := m.now().UTC()
	expires := issued.Add(m.expiry)

	claims := Claims{
		UserID: user.ID,
		Login:  user.UserID,
		Role:   user.Role,
		Stamp:  SessionStamp(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken verifies signature, issuer and expiry.
// Failures wrap ErrSessionExpired or ErrInvalidToken.
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
		jwt.WithTimeFunc(m.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.Join(ErrSessionExpired, err)
	default:
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CheckStamp rejects claims issued against a password the user no longer has.
func CheckStamp(claims *Claims, user *entity.DbUser) error {
	if claims == nil || user == nil || claims.Stamp != SessionStamp(user) {
		return ErrStaleSession
	}
	return nil
}
