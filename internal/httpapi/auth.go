package httpapi

import (
	"context"
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"hotelpos/backend/internal/domain"
)

type Authenticator interface {
	Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.StaffMember, error)
}

// AuthManager turns a password login into a signed access token and reads the
// token back into an actor on every authenticated request.
type AuthManager struct {
	secret        []byte
	tokenTTL      time.Duration
	authenticator Authenticator
}

type staffClaims struct {
	jwtlib.RegisteredClaims
	Role    string `json:"role"`
	StaffID int64  `json:"staff_id"`
}

var errInvalidToken = errors.New("invalid or expired token")

func NewAuthManager(secret string, tokenTTL time.Duration, authenticator Authenticator) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:        []byte(secret),
		tokenTTL:      tokenTTL,
		authenticator: authenticator,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	member, err := a.authenticator.Authenticate(ctx, req)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	token, expiresAt, err := a.Issue(*member)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        member.Role,
		StaffName:   member.Name,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) Issue(member domain.StaffMember) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   member.Username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "hotelpos",
		},
		Role:    member.Role,
		StaffID: member.ID,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &staffClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("hotelpos"))
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.Role == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{StaffID: claims.StaffID, Username: sub, Role: claims.Role}, nil
}
