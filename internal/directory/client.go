package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/cimillas/library-lending/internal/domain"
	"github.com/cimillas/library-lending/internal/retry"
)

const defaultTimeout = 3 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type bearerKey struct{}

// WithBearer attaches the caller's bearer token so directory calls are made on
// the caller's behalf.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

func BearerFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}

// Client talks to the student directory service over HTTP.
type Client struct {
	baseURL      string
	http         *http.Client
	serviceToken string
	retryOpts    []retry.Option
	logger       *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithServiceToken is used when the request context carries no caller token.
func WithServiceToken(token string) Option {
	return func(c *Client) { c.serviceToken = token }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithRetry(opts ...retry.Option) Option {
	return func(c *Client) { c.retryOpts = append(c.retryOpts, opts...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exists reports whether the directory knows the student.
func (c *Client) Exists(ctx context.Context, studentID int64) (bool, error) {
	var exists bool
	path := "/api/students/exists/" + strconv.FormatInt(studentID, 10)
	err := c.get(ctx, path, func(status int, body []byte) error {
		switch {
		case status == http.StatusNotFound:
			exists = false
			return nil
		case status != http.StatusOK:
			return unexpectedStatus(status)
		}
		if err := json.Unmarshal(body, &exists); err != nil {
			return fmt.Errorf("%w: decode exists: %v", domain.ErrDirectoryUnavailable, err)
		}
		return nil
	})
	return exists, err
}

type studentIDResponse struct {
	ID int64 `json:"id"`
}

// FindIDByEmail resolves the student id registered for email.
func (c *Client) FindIDByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	path := "/api/students/by-email/" + url.PathEscape(email)
	err := c.get(ctx, path, func(status int, body []byte) error {
		switch {
		case status == http.StatusNotFound:
			return fmt.Errorf("%w: email %s", domain.ErrStudentNotFound, email)
		case status != http.StatusOK:
			return unexpectedStatus(status)
		}
		var resp studentIDResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("%w: decode student: %v", domain.ErrDirectoryUnavailable, err)
		}
		if resp.ID <= 0 {
			return fmt.Errorf("%w: email %s", domain.ErrStudentNotFound, email)
		}
		id = resp.ID
		return nil
	})
	return id, err
}

func (c *Client) get(ctx context.Context, path string, handle func(status int, body []byte) error) error {
	opts := append([]retry.Option{
		retry.WithRetryIf(isUnavailable),
		retry.WithOnRetry(func(attempt int, err error) {
			c.logger.WarnContext(ctx, "student directory call failed, retrying",
				slog.String("path", path), slog.Int("attempt", attempt), slog.Any("error", err))
		}),
	}, c.retryOpts...)

	return retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build directory request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if token := c.token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("%w: read body: %v", domain.ErrDirectoryUnavailable, err)
		}
		return handle(resp.StatusCode, body)
	}, opts...)
}

func (c *Client) token(ctx context.Context) string {
	if token := BearerFromContext(ctx); token != "" {
		return token
	}
	return c.serviceToken
}

func unexpectedStatus(status int) error {
	return fmt.Errorf("%w: status %d", domain.ErrDirectoryUnavailable, status)
}

func isUnavailable(err error) bool {
	return errors.Is(err, domain.ErrDirectoryUnavailable)
}
