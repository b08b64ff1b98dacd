// Package remote provides the client for the remote record backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nordqvist/fakture/internal/models"
)

// RESTConfig holds connection configuration for a PostgREST-style backend.
type RESTConfig struct {
	Endpoint string // Base URL, e.g. "https://xyz.supabase.co/rest/v1"
	APIKey   string // Sent as the apikey header
	Token    string // Bearer token; falls back to APIKey when empty
}

// RESTClient implements Backend against a PostgREST-compatible HTTP API.
// Upserts rely on the table's primary key via resolution=merge-duplicates,
// so re-applying the same change is harmless.
type RESTClient struct {
	config     *RESTConfig
	httpClient *http.Client
}

// NewRESTClient creates a new RESTClient.
func NewRESTClient(config *RESTConfig) *RESTClient {
	return &RESTClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: false,
			},
		},
	}
}

// Upsert creates or replaces a record in the named collection.
func (c *RESTClient) Upsert(ctx context.Context, collection string, record json.RawMessage) error {
	req, err := c.createRequest(ctx, http.MethodPost, collection, "", bytes.NewReader(record))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upsert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upsert failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Delete removes a record by id. A 404 is treated as success.
func (c *RESTClient) Delete(ctx context.Context, collection string, id models.UUID) error {
	query := "id=eq." + url.QueryEscape(id.String())
	req, err := c.createRequest(ctx, http.MethodDelete, collection, query, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Select returns the records matching the filter.
func (c *RESTClient) Select(ctx context.Context, collection string, filter Filter) ([]json.RawMessage, error) {
	var parts []string
	if filter.ID != "" {
		parts = append(parts, "id=eq."+url.QueryEscape(filter.ID.String()))
	}
	if filter.UserID != "" {
		parts = append(parts, "user_id=eq."+url.QueryEscape(filter.UserID.String()))
	}
	parts = append(parts, "select=*")

	req, err := c.createRequest(ctx, http.MethodGet, collection, strings.Join(parts, "&"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("select request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("select failed with status %d: %s", resp.StatusCode, string(body))
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return rows, nil
}

// Ping probes the backend root. Any HTTP response counts as reachable;
// only transport errors mean offline.
func (c *RESTClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.config.Endpoint, nil)
	if err != nil {
		return err
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	resp.Body.Close()
	return nil
}

// createRequest creates an authenticated request against a collection.
func (c *RESTClient) createRequest(ctx context.Context, method, collection, query string, body io.Reader) (*http.Request, error) {
	urlStr := strings.TrimSuffix(c.config.Endpoint, "/") + "/" + collection
	if query != "" {
		urlStr += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, err
	}

	c.setAuthHeaders(req)
	return req, nil
}

func (c *RESTClient) setAuthHeaders(req *http.Request) {
	if c.config.APIKey != "" {
		req.Header.Set("apikey", c.config.APIKey)
	}
	token := c.config.Token
	if token == "" {
		token = c.config.APIKey
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
