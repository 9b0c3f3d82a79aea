package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	predictPath    = "/v1/predict"
	requestTimeout = 30 * time.Second
)

// Client calls a remote estimator service over HTTP.
type Client struct {
	baseURL string
	hc      *http.Client
}

type predictRequest struct {
	Features map[string]float64 `json:"features"`
}

type predictResponse struct {
	Probability float64 `json:"probability"`
}

// NewClient builds a client authenticated with a static bearer token.
func NewClient(ctx context.Context, baseURL, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		TokenType:   "Bearer",
		AccessToken: token,
	})
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = requestTimeout
	return &Client{baseURL: baseURL, hc: hc}
}

// NewClientCredentials builds a client that fetches tokens via the
// OAuth2 client-credentials grant.
func NewClientCredentials(ctx context.Context, baseURL, clientID, clientSecret, tokenURL string) *Client {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	hc := cfg.Client(ctx)
	hc.Timeout = requestTimeout
	return &Client{baseURL: baseURL, hc: hc}
}

// Predict posts the feature vector and returns the model probability.
func (c *Client) Predict(ctx context.Context, features map[string]float64) (float64, error) {
	body, err := json.Marshal(predictRequest{Features: features})
	if err != nil {
		return 0, fmt.Errorf("marshaling predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling estimator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("estimator returned %d: %s", resp.StatusCode, string(b))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding estimator response: %w", err)
	}
	return out.Probability, nil
}
