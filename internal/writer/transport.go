package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// maxSummaryBytes caps Summary before the ellipsis
const maxSummaryBytes = 500

// response is the outcome of one outbound call to the data extension API
type response struct {
	StatusCode int
	Body       []byte
	Truncated  bool
	Latency    time.Duration
}

// Summary returns a short printable form of the body for logs and the attempt log
func (r *response) Summary() string {
	summary := string(r.Body)
	if r.Truncated {
		summary = fmt.Sprintf("Response body truncated (max %d bytes): %s", len(r.Body), summary)
	}
	if len(summary) > maxSummaryBytes {
		cut := maxSummaryBytes
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut] + "..."
	}
	return strings.ToValidUTF8(summary, "")
}

// transport performs POST requests with a bounded response read
type transport struct {
	client          *http.Client
	maxResponseBody int
	logger          *zap.Logger
}

func newTransport(client *http.Client, maxResponseBody int, logger *zap.Logger) *transport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxResponseBody <= 0 {
		maxResponseBody = 64 * 1024
	}
	return &transport{client: client, maxResponseBody: maxResponseBody, logger: logger}
}

// post sends body to url with the given headers
func (t *transport) post(ctx context.Context, url string, body []byte, headers map[string]string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	startTime := time.Now()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	result := &response{
		StatusCode: resp.StatusCode,
		Latency:    time.Since(startTime),
	}

	// Read response body (limited to maxResponseBody)
	buf := make([]byte, t.maxResponseBody+1) // +1 to detect truncation
	n, readErr := io.ReadFull(resp.Body, buf)
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}

	if n > t.maxResponseBody {
		result.Body = buf[:t.maxResponseBody]
		result.Truncated = true
		t.logger.Warn("Response body truncated",
			zap.String("url", url),
			zap.Int("max_bytes", t.maxResponseBody),
		)
	} else {
		result.Body = buf[:n]
	}

	return result, nil
}
