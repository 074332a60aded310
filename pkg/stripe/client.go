package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/angelmondragon/vowvendors-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultRequestTimeout = 10 * time.Second
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api            *stripe.Client
	environment    string
	signingSecret  string
	requestTimeout time.Duration
}

// NewClient validates the configured key against the environment and builds
// a per-instance Stripe client. The webhook secret may be empty here; the
// webhook receiver rejects every delivery in that case.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:            stripe.NewClient(apiKey),
		environment:    env,
		signingSecret:  strings.TrimSpace(cfg.WebhookSecret),
		requestTimeout: timeout,
	}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// RequestTimeout bounds a single outbound Stripe call.
func (c *Client) RequestTimeout() time.Duration {
	if c == nil || c.requestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return c.requestTimeout
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
