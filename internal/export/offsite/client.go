// Package offsite replicates backup files to S3-compatible object
// storage. The client speaks the S3 REST API directly with AWS V4
// request signing, so AWS S3, Cloudflare R2 and MinIO all work through
// the same code path.
package offsite

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds object-store connection configuration.
type Config struct {
	Endpoint       string // Host or URL of the S3-compatible endpoint
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool // Path-style URLs (endpoint/bucket/key), required for MinIO
}

// Client is a minimal S3-compatible object store client.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// listBucketResult is the S3 ListObjectsV2 response.
type listBucketResult struct {
	XMLName  xml.Name `xml:"ListBucketResult"`
	Contents []struct {
		Key          string `xml:"Key"`
		LastModified string `xml:"LastModified"`
		Size         int64  `xml:"Size"`
	} `xml:"Contents"`
}

// NewClient creates a Client.
func NewClient(config *Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Upload stores an object under the given key.
func (c *Client) Upload(ctx context.Context, key string, data []byte) error {
	req, err := c.createRequest(ctx, http.MethodPut, key, bytes.NewReader(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Download fetches an object by key.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	req, err := c.createRequest(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download failed with status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// Delete removes an object by key.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := c.createRequest(ctx, http.MethodDelete, key, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// List returns the keys under a prefix via ListObjectsV2.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	req, err := c.createRequest(ctx, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = "list-type=2&prefix=" + url.QueryEscape(prefix)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result listBucketResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var keys []string
	for _, content := range result.Contents {
		keys = append(keys, content.Key)
	}
	return keys, nil
}

// TestConnection verifies the bucket is reachable and readable.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.List(ctx, "")
	return err
}

// createRequest builds a signed request for a key. An empty key
// addresses the bucket itself.
func (c *Client) createRequest(ctx context.Context, method, key string, body io.Reader) (*http.Request, error) {
	endpoint := c.config.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	var urlStr string
	if c.config.ForcePathStyle {
		urlStr = endpoint + "/" + c.config.Bucket
		if key != "" {
			urlStr += "/" + key
		}
	} else {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint: %w", err)
		}
		u.Host = c.config.Bucket + "." + u.Host
		urlStr = u.String()
		if key != "" {
			urlStr += "/" + key
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, err
	}

	amzDate := time.Now().UTC().Format("20060102T150405Z")
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", "UNSIGNED-PAYLOAD")
	req.Header.Set("Authorization", c.calculateAuthorization(method, req.Host, req.URL.Path, amzDate))

	return req, nil
}

// calculateAuthorization computes the AWS V4 signature header.
func (c *Client) calculateAuthorization(method, host, path, amzDate string) string {
	dateStamp := amzDate[:8]
	scope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, c.config.Region)

	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-date:%s\n", host, amzDate)
	signedHeaders := "host;x-amz-date"
	payloadHash := "UNSIGNED-PAYLOAD"

	canonicalRequest := strings.Join([]string{
		method, path, "", canonicalHeaders, signedHeaders, payloadHash,
	}, "\n")

	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256", amzDate, scope,
		hex.EncodeToString(hashSHA256([]byte(canonicalRequest))),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+c.config.SecretKey), dateStamp)
	kRegion := hmacSHA256(kDate, c.config.Region)
	kService := hmacSHA256(kRegion, "s3")
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	return fmt.Sprintf("AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		c.config.AccessKey, scope, signedHeaders, signature)
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hashSHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
