package auth

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
)

type firebaseTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseVerifier checks Firebase Authentication ID tokens, the ones the
// mobile clients already hold. The token uid is the users/{id} key.
type FirebaseVerifier struct {
	client firebaseTokenVerifier
}

func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Identity{}, ErrMissingToken
	}
	tok, err := v.client.VerifyIDToken(ctx, tokenString)
	if err != nil {
		return Identity{}, err
	}
	email, _ := tok.Claims["email"].(string)
	return Identity{
		UserID:   tok.UID,
		Email:    normalizeEmail(email),
		Provider: "firebase",
	}, nil
}

// DevVerifier trusts the token as the user id. Only for local runs and tests.
type DevVerifier struct{}

func (DevVerifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}
	return Identity{UserID: tokenString, Provider: "dev"}, nil
}
