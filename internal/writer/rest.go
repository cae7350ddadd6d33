package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/activity"
	"github.com/marminbh/journey-logger-svc/internal/config"
)

// RESTWriter inserts rows through the async data extension rows endpoint.
// Inserts are not deduplicated.
type RESTWriter struct {
	tokens    TokenSource
	opts      Options
	transport *transport
	logger    *zap.Logger
}

// NewRESTWriter creates a writer that inserts rows through the async REST API
func NewRESTWriter(tokens TokenSource, opts Options, logger *zap.Logger) *RESTWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTWriter{
		tokens:    tokens,
		opts:      opts,
		transport: newTransport(opts.HTTPClient, opts.MaxResponseBody, logger),
		logger:    logger,
	}
}

func (w *RESTWriter) Name() string { return config.StrategyREST }

func (w *RESTWriter) Check(ctx context.Context) error {
	return checkToken(ctx, w.tokens)
}

type restRows struct {
	Items []map[string]string `json:"items"`
}

func (w *RESTWriter) Write(ctx context.Context, record activity.ExecutionRecord) (*Result, error) {
	token, err := w.tokens.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain token: %w", err)
	}

	payload, err := json.Marshal(restRows{
		Items: []map[string]string{{
			ColumnContactKey:          record.ContactKey,
			ColumnLabel:               record.Label,
			ColumnEventDate:           record.FormattedEventDate(),
			ColumnJourneyDefinitionID: record.JourneyDefinitionID,
			ColumnJourneyVersion:      record.JourneyVersion,
			ColumnJourneyName:         record.JourneyName,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rows payload: %w", err)
	}

	base := w.opts.BaseURL
	if token.RESTInstanceURL != "" {
		base = token.RESTInstanceURL
	}
	endpoint := joinURL(base, "data/v1/async/dataextensions/key:"+url.PathEscape(w.opts.DataExtensionKey)+"/rows")

	resp, err := w.transport.post(ctx, endpoint, payload, map[string]string{
		"Authorization": "Bearer " + token.AccessToken,
		"Content-Type":  "application/json",
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		w.tokens.Invalidate(token.AccessToken)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &RemoteError{
			Strategy:   w.Name(),
			StatusCode: resp.StatusCode,
			Message:    resp.Summary(),
		}
	}

	w.logger.Debug("Row inserted",
		zap.String("contact_key", record.ContactKey),
		zap.String("label", record.Label),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", resp.Latency),
	)

	var data any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		data = string(resp.Body)
	}

	return &Result{
		Label:      record.Label,
		Data:       data,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
		Summary:    resp.Summary(),
	}, nil
}
