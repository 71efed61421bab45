package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Auth modes accepted by NewGoogleService.
const (
	AuthServiceAccount = "service_account"
	AuthOAuth          = "oauth"
)

// NewGoogleService builds a Calendar client. In service_account mode
// credentialsPath is a service account key; in oauth mode it is the OAuth
// client secret and tokenPath holds a previously authorized token.
func NewGoogleService(ctx context.Context, mode, credentialsPath, tokenPath string) (*gcal.Service, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("calendar: read credentials: %w", err)
	}

	switch mode {
	case "", AuthServiceAccount:
		creds, err := google.CredentialsFromJSON(ctx, data, gcal.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse service account: %w", err)
		}
		svc, err := gcal.NewService(ctx, option.WithCredentials(creds))
		if err != nil {
			return nil, fmt.Errorf("calendar: create service: %w", err)
		}
		return svc, nil
	case AuthOAuth:
		cfg, err := google.ConfigFromJSON(data, gcal.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse oauth client: %w", err)
		}
		tok, err := loadToken(tokenPath)
		if err != nil {
			return nil, err
		}
		svc, err := gcal.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
		if err != nil {
			return nil, fmt.Errorf("calendar: create service: %w", err)
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("calendar: unknown auth mode %q", mode)
	}
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("calendar: read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("calendar: decode token: %w", err)
	}
	return &tok, nil
}
