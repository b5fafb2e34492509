package firestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

type AppConfig struct {
	ProjectID string
	// CredentialsJSON is a base64-encoded service account key. It wins over
	// CredentialsFile when both are set.
	CredentialsJSON string
	CredentialsFile string
}

// OpenApp initializes the Firebase app shared by the Firestore client and the
// ID token verifier. With no credentials configured it falls back to
// application default credentials (or the emulator, when FIRESTORE_EMULATOR_HOST
// is set).
func OpenApp(ctx context.Context, cfg AppConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		decoded, err := base64.StdEncoding.DecodeString(cfg.CredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("decode firebase credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(decoded))
	case cfg.CredentialsFile != "":
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file: %w", err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

// Open returns a Store backed by the app's Firestore client.
func Open(ctx context.Context, app *firebase.App) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open firestore: %w", err)
	}
	return New(client), nil
}
