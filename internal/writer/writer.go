// Package writer writes execution audit rows to the tenant's data extension.
//
// Two strategies exist: the SOAP object-update API (keyed UpdateAdd) and the
// REST async rows API (plain insert). Both implement Writer and are chosen
// per deployment.
package writer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/activity"
	"github.com/marminbh/journey-logger-svc/internal/auth"
	"github.com/marminbh/journey-logger-svc/internal/config"
)

// Data extension column names
const (
	ColumnContactKey          = "ContactKey"
	ColumnLabel               = "Label"
	ColumnEventDate           = "EventDate"
	ColumnJourneyDefinitionID = "Journey Definition Id"
	ColumnJourneyVersion      = "Journey Version"
	ColumnJourneyName         = "Journey Name"
)

// Writer writes one audit row per call
type Writer interface {
	Write(ctx context.Context, record activity.ExecutionRecord) (*Result, error)
	// Check verifies credentials and tenant reachability without writing
	Check(ctx context.Context) error
	Name() string
}

// TokenSource supplies bearer tokens; *auth.TokenManager implements it
type TokenSource interface {
	Current(ctx context.Context) (*auth.Token, error)
	// Invalidate drops the cached token if it still equals rejected
	Invalidate(rejected string)
}

// Result is echoed back to the platform as the execute response body
type Result struct {
	Label string `json:"label"`
	Data  any    `json:"data"`

	StatusCode int           `json:"-"`
	Latency    time.Duration `json:"-"`
	Summary    string        `json:"-"`
}

// RemoteError is returned when the data extension API rejects a write
type RemoteError struct {
	Strategy   string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s write failed: %s", e.Strategy, e.Message)
	}
	return fmt.Sprintf("%s write failed with status %d: %s", e.Strategy, e.StatusCode, e.Message)
}

// Options carries the settings shared by both strategies
type Options struct {
	DataExtensionKey string
	// BaseURL is used when the token does not name an instance URL
	BaseURL         string
	HTTPClient      *http.Client
	MaxResponseBody int
}

// New builds the writer selected by cfg.Strategy
func New(cfg *config.MarketingCloudConfig, tokens TokenSource, logger *zap.Logger) (Writer, error) {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	switch cfg.Strategy {
	case config.StrategySOAP:
		return NewSOAPWriter(tokens, Options{
			DataExtensionKey: cfg.DataExtensionKey,
			BaseURL:          cfg.SOAPBaseURL(),
			HTTPClient:       client,
			MaxResponseBody:  cfg.MaxResponseBody,
		}, logger), nil
	case config.StrategyREST:
		return NewRESTWriter(tokens, Options{
			DataExtensionKey: cfg.DataExtensionKey,
			BaseURL:          cfg.RESTBaseURL(),
			HTTPClient:       client,
			MaxResponseBody:  cfg.MaxResponseBody,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown writer strategy %q", cfg.Strategy)
	}
}

// joinURL appends path to base with exactly one slash between them
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func checkToken(ctx context.Context, tokens TokenSource) error {
	if _, err := tokens.Current(ctx); err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}
	return nil
}
