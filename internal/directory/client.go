// Package directory implements the AlertQuery client for the external User Directory.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilindan-dev/availability-notifier/internal/config"
	"github.com/ilindan-dev/availability-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/availability-notifier/internal/domain/repository"
	"github.com/rs/zerolog"
)

// Ensure Client implements the interface
var _ repo.AlertDirectory = (*Client)(nil)

const (
	defaultTimeout = 5 * time.Second
	// maxErrorBody caps how much of a failed response is kept in the error message.
	maxErrorBody = 512
)

// userRecord is a single entry of the directory response.
type userRecord struct {
	ID             *int64 `json:"id"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phoneNumber"`
	TelegramChatID int64  `json:"telegramChatId"`
}

// Client queries the User Directory for users alerting on a product/date pair.
// It is safe for concurrent use and meant to be created once per process.
type Client struct {
	httpClient *http.Client
	template   string
	logger     zerolog.Logger
}

// NewClient creates a new directory Client from the configuration.
func NewClient(cfg *config.Config, logger *zerolog.Logger) *Client {
	timeout := cfg.Directory.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		template:   cfg.Directory.AlertQueryEndpointTemplate,
		logger:     logger.With().Str("component", "directory_client").Logger(),
	}
}

// Resolve implements repo.AlertDirectory.
func (c *Client) Resolve(ctx context.Context, q model.AlertQuery) ([]model.AlertedUser, error) {
	if q.ProductID <= 0 {
		return nil, fmt.Errorf("directory: product id must be positive, got %d", q.ProductID)
	}
	if q.AvailableOn.IsZero() {
		return nil, fmt.Errorf("directory: available-on date is required")
	}

	endpoint := c.endpoint(q)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpoint).Msg("alert query request failed")
		return nil, fmt.Errorf("%w: %v", repo.ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error().Int("status", resp.StatusCode).Str("url", endpoint).Msg("alert query returned non-success status")
		return nil, fmt.Errorf("%w: status=%d, body=%s", repo.ErrDirectoryUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []userRecord
	dec := json.NewDecoder(resp.Body)
	err = dec.Decode(&records)
	if err == nil {
		// The body must hold exactly one JSON value.
		if extra := dec.Decode(&struct{}{}); !errors.Is(extra, io.EOF) {
			err = fmt.Errorf("unexpected data after user list: %v", extra)
		}
	}
	if err != nil {
		var netErr net.Error
		if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
			c.logger.Error().Err(err).Str("url", endpoint).Msg("alert query response interrupted")
			return nil, fmt.Errorf("%w: %v", repo.ErrDirectoryUnavailable, err)
		}
		c.logger.Error().Err(err).Str("url", endpoint).Msg("failed to decode alert query response")
		return nil, fmt.Errorf("%w: %v", repo.ErrDirectoryProtocol, err)
	}

	users := make([]model.AlertedUser, 0, len(records))
	for i, r := range records {
		if r.ID == nil {
			return nil, fmt.Errorf("%w: user record %d has no id", repo.ErrDirectoryProtocol, i)
		}
		users = append(users, model.AlertedUser{
			UserID:   *r.ID,
			FullName: r.FullName,
			Contact: model.ContactInfo{
				Email:          r.Email,
				PhoneNumber:    r.PhoneNumber,
				TelegramChatID: r.TelegramChatID,
			},
		})
	}

	c.logger.Debug().Int64("product_id", q.ProductID).Int("users", len(users)).Msg("alert query resolved")
	return users, nil
}

// endpoint expands the configured template for a query.
func (c *Client) endpoint(q model.AlertQuery) string {
	return strings.NewReplacer(
		config.ProductIDPlaceholder, url.PathEscape(strconv.FormatInt(q.ProductID, 10)),
		config.AvailableOnPlaceholder, url.PathEscape(q.AvailableOn.Format(model.DateLayout)),
	).Replace(c.template)
}
