// Package classifier talks to the remote classify endpoint.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/ecosort/internal/models"
	"github.com/lehigh-university-libraries/ecosort/internal/selection"
)

const (
	// ClassifyPath is appended to the configured base URL.
	ClassifyPath = "/api/classify"
	// FieldName is the multipart part carrying the image.
	FieldName = "image"

	maxResponseSize = 1 << 20
)

// Result is a successful classification.
type Result struct {
	Label      string  `json:"classification"`
	Confidence float64 `json:"confidence"`
}

// Client posts images to a classification service. It never retries and
// imposes no timeout of its own; callers bound requests through the context.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: expected http(s)://host", baseURL)
	}

	c := &Client{
		endpoint:   baseURL + ClassifyPath,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint is the full classify URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Classify uploads img and maps the response to a Result or an *Error.
func (c *Client) Classify(ctx context.Context, img *selection.Image) (*Result, error) {
	if img == nil {
		return nil, NoImageError()
	}

	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID, "filename", img.Filename)

	body, contentType, err := encodeMultipart(img)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: MessageUnreachable, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: MessageUnreachable, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	logger.Debug("Sending classification request", "endpoint", c.endpoint, "bytes", len(img.Data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Classification request canceled")
			return nil, &Error{Kind: KindCanceled, Message: MessageCanceled, Err: err}
		}
		if isTimeout(err) {
			logger.Warn("Classification request timed out", "elapsed", time.Since(start))
			return nil, &Error{Kind: KindTransport, Message: MessageTimeout, Err: err}
		}
		logger.Error("Classification request failed", "err", err)
		return nil, &Error{Kind: KindTransport, Message: MessageUnreachable, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		logger.Error("Failed to read classification response", "err", err, "status", resp.StatusCode)
		return nil, &Error{Kind: KindTransport, Message: MessageUnreachable, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	logger.Debug("Classification response received", "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cerr := parseErrorBody(resp.StatusCode, payload)
		logger.Warn("Classification service reported an error", "status", resp.StatusCode, "message", cerr.Message)
		return nil, cerr
	}

	result, err := parseResult(payload)
	if err != nil {
		logger.Warn("Malformed classification response", "err", err)
		return nil, &Error{Kind: KindMalformedResponse, Message: MessageMalformed, Status: resp.StatusCode, Err: err}
	}

	logger.Info("Image classified", "label", result.Label, "confidence", result.Confidence)
	return result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(img *selection.Image) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, quoteEscaper.Replace(img.Filename)))
	header.Set("Content-Type", img.MediaType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

func parseErrorBody(status int, payload []byte) *Error {
	var body models.ErrorResponse
	if err := json.Unmarshal(payload, &body); err != nil || strings.TrimSpace(body.Error) == "" {
		return &Error{Kind: KindServerReported, Message: MessageServerFallback, Status: status}
	}
	return &Error{Kind: KindServerReported, Message: body.Error, Status: status}
}

func parseResult(payload []byte) (*Result, error) {
	var body struct {
		Classification *string  `json:"classification"`
		Confidence     *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	if body.Classification == nil || strings.TrimSpace(*body.Classification) == "" {
		return nil, errors.New("response has no classification")
	}
	if body.Confidence == nil {
		return nil, errors.New("response has no confidence")
	}
	if *body.Confidence < 0 || *body.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v outside [0,1]", *body.Confidence)
	}
	return &Result{Label: *body.Classification, Confidence: *body.Confidence}, nil
}

// isTimeout covers both a context deadline and the http.Client timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
