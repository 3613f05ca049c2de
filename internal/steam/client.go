// Package steam implements HTTP clients for the Steam bulk-listing and
// per-app detail endpoints. Both are treated as untrusted, rate-limited,
// occasionally malformed data sources.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/lmei/steamscout/internal/catalog"
	"github.com/lmei/steamscout/internal/config"
	"github.com/lmei/steamscout/internal/metrics"
)

// maxBodyBytes caps how much of a response we are willing to read.
const maxBodyBytes = 8 << 20

// Client talks to the Steam Web API endpoints.
type Client struct {
	httpClient *http.Client
	listURL    string
	detailURL  string
	locale     string
	userAgent  string
	logger     *zap.Logger
}

// New builds a Client from the Steam endpoint configuration.
func New(cfg config.SteamConfig, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		listURL:    cfg.AppListURL,
		detailURL:  cfg.AppDetailsURL,
		locale:     cfg.Locale,
		userAgent:  cfg.UserAgent,
		logger:     logger,
	}
}

// detailEnvelope is the per-id wrapper the detail endpoint returns:
// {"<appid>": {"success": bool, "data": {...}}}.
type detailEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// detailData decodes only the attributes classification needs. The two
// language fields arrive as free-form values and are decoded leniently.
type detailData struct {
	Name               string             `json:"name"`
	Type               string             `json:"type"`
	SupportedLanguages json.RawMessage    `json:"supported_languages"`
	Languages          json.RawMessage    `json:"languages"`
	Categories         []catalog.Category `json:"categories"`
}

// AppDetails fetches the attribute bag for one id, mapping every failure
// mode onto the catalog error taxonomy.
func (c *Client) AppDetails(ctx context.Context, id catalog.AppID) (catalog.AppDetails, error) {
	endpoint, err := c.detailEndpoint(id)
	if err != nil {
		return catalog.AppDetails{}, catalog.TransportErr(id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return catalog.AppDetails{}, catalog.TransportErr(id, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveRequest("transport-error", elapsed)
		return catalog.AppDetails{}, catalog.TransportErr(id, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.ObserveRequest("rate-limited", elapsed)
		return catalog.AppDetails{}, catalog.RateLimitedErr(id)
	case resp.StatusCode != http.StatusOK:
		metrics.ObserveRequest("http-"+strconv.Itoa(resp.StatusCode), elapsed)
		return catalog.AppDetails{}, catalog.TransportErr(id, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveRequest("transport-error", elapsed)
		return catalog.AppDetails{}, catalog.TransportErr(id, err)
	}

	var payload map[string]detailEnvelope
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.ObserveRequest("parse-error", elapsed)
		return catalog.AppDetails{}, catalog.ParseErr(id, err)
	}

	envelope, ok := payload[strconv.FormatInt(int64(id), 10)]
	if !ok || !envelope.Success {
		metrics.ObserveRequest("api-failure", elapsed)
		return catalog.AppDetails{}, catalog.APIFailureErr(id)
	}

	var data detailData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		metrics.ObserveRequest("parse-error", elapsed)
		return catalog.AppDetails{}, catalog.ParseErr(id, err)
	}

	metrics.ObserveRequest("ok", elapsed)
	return catalog.AppDetails{
		Name:               data.Name,
		Type:               data.Type,
		SupportedLanguages: lenientString(data.SupportedLanguages),
		Languages:          lenientString(data.Languages),
		Categories:         data.Categories,
	}, nil
}

func (c *Client) detailEndpoint(id catalog.AppID) (string, error) {
	u, err := url.Parse(c.detailURL)
	if err != nil {
		return "", fmt.Errorf("parse detail url: %w", err)
	}
	q := u.Query()
	q.Set("appids", strconv.FormatInt(int64(id), 10))
	if c.locale != "" {
		q.Set("l", c.locale)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// appListPayload is the bulk listing shape:
// {"applist": {"apps": [{"appid": N, "name": "..."}]}}.
type appListPayload struct {
	AppList struct {
		Apps []struct {
			AppID int64 `json:"appid"`
		} `json:"apps"`
	} `json:"applist"`
}

// AppList fetches the complete identifier universe, retrying transient
// failures with exponential backoff.
func (c *Client) AppList(ctx context.Context) ([]catalog.AppID, error) {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(time.Second))

	var ids []catalog.AppID
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var attemptErr error
		ids, attemptErr = c.fetchAppList(ctx)
		if attemptErr != nil {
			c.logger.Warn("app list fetch attempt failed", zap.Error(attemptErr))
			return retry.RetryableError(attemptErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch app list: %w", err)
	}
	return ids, nil
}

func (c *Client) fetchAppList(ctx context.Context) ([]catalog.AppID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get app list: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("app list status %d", resp.StatusCode)
	}

	var payload appListPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode app list: %w", err)
	}

	ids := make([]catalog.AppID, 0, len(payload.AppList.Apps))
	for _, app := range payload.AppList.Apps {
		ids = append(ids, catalog.AppID(app.AppID))
	}
	return ids, nil
}

// lenientString decodes raw as a JSON string, joins string arrays, and
// returns "" for absent or unexpectedly shaped values.
func lenientString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return ""
}
