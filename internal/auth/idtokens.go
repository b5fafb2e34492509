package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendrickPhan/go-verify-apple-id-token/validator"
	"google.golang.org/api/idtoken"
)

var ErrMissingToken = errors.New("missing id token")

// Identity is the verified caller of a request.
type Identity struct {
	UserID   string
	Email    string
	Provider string
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type GoogleVerifier struct {
	ClientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleVerifier(clientID string) (*GoogleVerifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("missing google client id")
	}
	return &GoogleVerifier{ClientID: clientID, validate: idtoken.Validate}, nil
}

func (v *GoogleVerifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Identity{}, ErrMissingToken
	}
	validate := v.validate
	if validate == nil {
		validate = idtoken.Validate
	}
	payload, err := validate(ctx, tokenString, v.ClientID)
	if err != nil {
		return Identity{}, err
	}
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return Identity{}, fmt.Errorf("unexpected issuer: %s", payload.Issuer)
	}

	email := ""
	if raw, ok := payload.Claims["email"]; ok {
		if s, ok := raw.(string); ok {
			email = s
		}
	}
	return Identity{
		UserID:   payload.Subject,
		Email:    normalizeEmail(email),
		Provider: "google",
	}, nil
}

type AppleVerifier struct {
	ServiceID string
}

func NewAppleVerifier(serviceID string) (*AppleVerifier, error) {
	if strings.TrimSpace(serviceID) == "" {
		return nil, errors.New("missing apple service id")
	}
	return &AppleVerifier{ServiceID: serviceID}, nil
}

func (v *AppleVerifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Identity{}, ErrMissingToken
	}
	client := validator.NewClient()
	idToken, err := client.VerifyIdToken(v.ServiceID, tokenString)
	if err != nil {
		return Identity{}, err
	}
	if idToken.Iss != "https://appleid.apple.com" {
		return Identity{}, fmt.Errorf("unexpected issuer: %s", idToken.Iss)
	}

	_ = ctx
	return Identity{
		UserID:   idToken.Sub,
		Email:    normalizeEmail(idToken.Email),
		Provider: "apple",
	}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
