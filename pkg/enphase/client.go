package enphase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const cloudBaseURL = "https://api.enphaseenergy.com/api/v4"

// Client executes authenticated requests against either the cloud API or
// the local IQ Gateway. The mode is fixed at construction. It holds no
// retry logic: any failure surfaces to the caller, and the scheduler's
// per-cycle isolation provides the retry cadence.
type Client struct {
	client  *http.Client
	baseURL string
	creds   Credentials

	// cloud mode only: the API requires a static key query parameter on
	// every request in addition to the bearer token.
	apiKey string
	local  bool
}

// NewCloudClient returns a client for the cloud API.
func NewCloudClient(creds Credentials, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		client:  httpClient,
		baseURL: cloudBaseURL,
		creds:   creds,
		apiKey:  apiKey,
	}
}

// NewLocalClient returns a client for the on-site gateway at baseURL
// (e.g. "https://envoy.local"). The http client must already trust the
// gateway's self-signed certificate when TLS is used.
func NewLocalClient(creds Credentials, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		client:  httpClient,
		baseURL: baseURL,
		creds:   creds,
		local:   true,
	}
}

func (c *Client) buildURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return "", err
	}
	if !c.local && c.apiKey != "" {
		if params == nil {
			params = url.Values{}
		}
		params.Set("key", c.apiKey)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// Get performs an authenticated GET and returns the raw JSON body.
// Credential failures are *AuthError; everything else is *TransportError
// carrying the endpoint path.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	target, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	return c.do(req, endpoint)
}

// Post performs an authenticated POST with a JSON body and returns the
// raw JSON response.
func (c *Client) Post(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	target, err := c.buildURL(endpoint, nil)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "POST", target, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint)
}

func (c *Client) do(req *http.Request, endpoint string) (json.RawMessage, error) {
	token, err := c.creds.EnsureToken(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if !json.Valid(body) {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("malformed JSON body (%d bytes)", len(body))}
	}
	return json.RawMessage(body), nil
}

// Close releases the underlying transport's idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// Local gateway endpoints.

// ProductionEnergy returns the per-interval production/consumption energy
// report.
func (c *Client) ProductionEnergy(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "/ivp/pdm/energy", nil)
}

// Production returns the legacy total-production endpoint.
func (c *Client) Production(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "/api/v1/production", nil)
}

// MeterReadings returns current AC power readings from the site meters.
func (c *Client) MeterReadings(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "/ivp/meters/readings", nil)
}

// InverterProduction returns per-inverter DC power.
func (c *Client) InverterProduction(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "/api/v1/production/inverters", nil)
}

// LiveData returns the live aggregate snapshot, including the stream
// state flag.
func (c *Client) LiveData(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "/ivp/livedata/status", nil)
}

// EnableLiveStream asks the gateway to start pushing live data. The
// caller re-fetches LiveData afterwards to confirm the state actually
// flipped.
func (c *Client) EnableLiveStream(ctx context.Context) (json.RawMessage, error) {
	return c.Post(ctx, "/ivp/livedata/stream", map[string]int{"enable": 1})
}

// Cloud API endpoints.

// Systems lists the systems accessible to this account. Zero values for
// limit/offset omit the parameter.
func (c *Client) Systems(ctx context.Context, limit, offset int) (json.RawMessage, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	return c.Get(ctx, "/systems", params)
}

// SystemDetails returns detailed info about one system.
func (c *Client) SystemDetails(ctx context.Context, systemID int64) (json.RawMessage, error) {
	return c.Get(ctx, fmt.Sprintf("/systems/%d", systemID), nil)
}

// Summary returns the aggregated production/consumption summary.
func (c *Client) Summary(ctx context.Context, systemID int64) (json.RawMessage, error) {
	return c.Get(ctx, fmt.Sprintf("/systems/%d/summary", systemID), nil)
}

// LatestTelemetry returns the most recent telemetry snapshot.
func (c *Client) LatestTelemetry(ctx context.Context, systemID int64) (json.RawMessage, error) {
	return c.Get(ctx, fmt.Sprintf("/systems/%d/latest_telemetry", systemID), nil)
}

// ProductionMeterReadings returns granular meter readings; zero start/end
// epochs omit the window parameters.
func (c *Client) ProductionMeterReadings(ctx context.Context, systemID, startAt, endAt int64) (json.RawMessage, error) {
	params := url.Values{}
	if startAt > 0 {
		params.Set("start_at", strconv.FormatInt(startAt, 10))
	}
	if endAt > 0 {
		params.Set("end_at", strconv.FormatInt(endAt, 10))
	}
	return c.Get(ctx, fmt.Sprintf("/systems/%d/production_meter_readings", systemID), params)
}
