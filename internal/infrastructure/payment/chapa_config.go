package payment

import (
	"errors"
	"strings"
)

const (
	chapaDefaultBaseURL = "https://api.chapa.co"
	chapaSandboxBaseURL = "https://api.chapa.co/sandbox"
)

// ChapaConfig contains configuration for the Chapa payment API
type ChapaConfig struct {
	// SecretKey is the bearer token used to authenticate API calls
	SecretKey string
	// BaseURL overrides the API host, mainly for tests
	BaseURL string
	// IsSandbox indicates whether to use the sandbox environment
	IsSandbox bool
	// CallbackURL is the default webhook URL for payment notifications
	CallbackURL string
}

// Errors for configuration validation
var (
	ErrChapaMissingSecretKey = errors.New("chapa: missing secret key")
	ErrChapaInvalidBaseURL   = errors.New("chapa: base URL must not end with a slash")
)

// Validate validates the configuration
func (c *ChapaConfig) Validate() error {
	if c.SecretKey == "" {
		return ErrChapaMissingSecretKey
	}
	if c.BaseURL != "" && strings.HasSuffix(c.BaseURL, "/") {
		return ErrChapaInvalidBaseURL
	}
	return nil
}

// apiBaseURL resolves the effective API host
func (c *ChapaConfig) apiBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.IsSandbox {
		return chapaSandboxBaseURL
	}
	return chapaDefaultBaseURL
}
