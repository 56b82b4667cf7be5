package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken   = errors.New("token is required")
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidSubject = errors.New("invalid user ID in token")
)

// RoleService marks tokens held by the domain services that publish
// notifications and resource events.
const RoleService = "service"

// Identity is what a verified bearer token resolves to.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

func (i *Identity) IsService() bool {
	return i != nil && i.Role == RoleService
}

// TokenVerifier turns an opaque bearer credential into an Identity.
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}

// JWTVerifier verifies HMAC-signed JWTs issued by the account service.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID := claimString(claims["user_id"])
	if userID == "" {
		userID = claimString(claims["sub"])
	}
	if userID == "" {
		return nil, ErrInvalidSubject
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	return &Identity{UserID: userID, Email: email, Role: role}, nil
}

// IssueToken signs a token for userID. Used by tooling and tests.
func (v *JWTVerifier) IssueToken(userID, email string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(v.secret)
}

// IssueServiceToken signs a token carrying the service role.
func (v *JWTVerifier) IssueServiceToken(name string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  name,
		"role": RoleService,
		"exp":  time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(v.secret)
}

// claimString accepts the numeric ids older tokens carry as well as strings.
func claimString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// TokenFromRequest reads the credential from the token/access_token query
// parameter, falling back to the Authorization header.
func TokenFromRequest(r *http.Request) string {
	q := r.URL.Query()
	if t := q.Get("token"); t != "" {
		return t
	}
	if t := q.Get("access_token"); t != "" {
		return t
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
