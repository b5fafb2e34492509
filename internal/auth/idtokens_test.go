package auth

import (
	"context"
	"errors"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/idtoken"
)

type stubFirebase struct {
	token *fbauth.Token
	err   error
}

func (s stubFirebase) VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error) {
	return s.token, s.err
}

func TestFirebaseVerifier(t *testing.T) {
	v := &FirebaseVerifier{client: stubFirebase{token: &fbauth.Token{
		UID:    "uid-1",
		Claims: map[string]interface{}{"email": " Reader@Example.com "},
	}}}
	id, err := v.Verify(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "uid-1" || id.Email != "reader@example.com" || id.Provider != "firebase" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if _, err := v.Verify(context.Background(), " "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}

	bad := &FirebaseVerifier{client: stubFirebase{err: errors.New("expired")}}
	if _, err := bad.Verify(context.Background(), "tok"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGoogleVerifierIssuer(t *testing.T) {
	v := &GoogleVerifier{ClientID: "cid", validate: func(ctx context.Context, token, audience string) (*idtoken.Payload, error) {
		if audience != "cid" {
			t.Fatalf("audience=%q", audience)
		}
		return &idtoken.Payload{Issuer: "https://accounts.google.com", Subject: "sub-1", Claims: map[string]interface{}{"email": "A@B.com"}}, nil
	}}
	id, err := v.Verify(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "sub-1" || id.Email != "a@b.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	v.validate = func(ctx context.Context, token, audience string) (*idtoken.Payload, error) {
		return &idtoken.Payload{Issuer: "https://evil.example", Subject: "x"}, nil
	}
	if _, err := v.Verify(context.Background(), "tok"); err == nil {
		t.Fatalf("expected issuer error")
	}
}

func TestConstructorsRequireAudience(t *testing.T) {
	if _, err := NewGoogleVerifier(""); err == nil {
		t.Fatalf("expected error for empty google client id")
	}
	if _, err := NewAppleVerifier(" "); err == nil {
		t.Fatalf("expected error for empty apple service id")
	}
}

func TestDevVerifier(t *testing.T) {
	id, err := DevVerifier{}.Verify(context.Background(), " u1 ")
	if err != nil || id.UserID != "u1" {
		t.Fatalf("id=%+v err=%v", id, err)
	}
	if _, err := (DevVerifier{}).Verify(context.Background(), ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}
