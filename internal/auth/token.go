package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ipamd/internal/domain"
)

const (
	issuer      = "ipamd"
	tokenLeeway = 30 * time.Second
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Claims is the JWT payload for both access and refresh tokens; TokenType
// keeps the two from being used interchangeably.
type Claims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256-signed tokens.
type TokenService struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(signingKey []byte, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		signingKey: signingKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

func (s *TokenService) Issue(user domain.User) (TokenPair, error) {
	access, err := s.sign(user, typeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, typeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *TokenService) sign(user domain.User, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Username:  user.Username,
		Role:      string(user.Role),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess parses an access token and returns the principal it names.
func (s *TokenService) VerifyAccess(raw string) (Principal, error) {
	return s.verify(raw, typeAccess)
}

// VerifyRefresh parses a refresh token for the refresh endpoint.
func (s *TokenService) VerifyRefresh(raw string) (Principal, error) {
	return s.verify(raw, typeRefresh)
}

func (s *TokenService) verify(raw, wantType string) (Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return s.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Principal{}, domain.Errorf(domain.ErrUnauthenticated, "令牌无效或已过期")
	}
	if claims.TokenType != wantType {
		return Principal{}, domain.Errorf(domain.ErrUnauthenticated, "令牌类型错误")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Principal{}, domain.Errorf(domain.ErrUnauthenticated, "令牌主体无效")
	}
	return Principal{
		UserID:   userID,
		Username: claims.Username,
		Role:     domain.Role(claims.Role),
	}, nil
}
