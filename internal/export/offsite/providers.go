package offsite

import (
	"fmt"
	"strings"
)

// Regional AWS S3 endpoints.
var awsEndpoints = map[string]string{
	"us-east-1":      "s3.amazonaws.com",
	"us-east-2":      "s3.us-east-2.amazonaws.com",
	"us-west-1":      "s3.us-west-1.amazonaws.com",
	"us-west-2":      "s3.us-west-2.amazonaws.com",
	"eu-west-1":      "s3.eu-west-1.amazonaws.com",
	"eu-west-2":      "s3.eu-west-2.amazonaws.com",
	"eu-west-3":      "s3.eu-west-3.amazonaws.com",
	"eu-central-1":   "s3.eu-central-1.amazonaws.com",
	"eu-north-1":     "s3.eu-north-1.amazonaws.com",
	"ap-northeast-1": "s3.ap-northeast-1.amazonaws.com",
	"ap-southeast-1": "s3.ap-southeast-1.amazonaws.com",
	"ap-southeast-2": "s3.ap-southeast-2.amazonaws.com",
	"ap-south-1":     "s3.ap-south-1.amazonaws.com",
	"ca-central-1":   "s3.ca-central-1.amazonaws.com",
	"sa-east-1":      "s3.sa-east-1.amazonaws.com",
}

// AWSConfig holds AWS S3-specific configuration.
type AWSConfig struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string // Default: us-east-1
}

// NewAWSClient creates a Client for AWS S3. AWS uses virtual-host
// style URLs (bucket.s3.amazonaws.com).
func NewAWSClient(config *AWSConfig) *Client {
	region := config.Region
	if region == "" {
		region = "us-east-1"
	}

	endpoint, ok := awsEndpoints[region]
	if !ok {
		endpoint = "s3.amazonaws.com"
	}

	return NewClient(&Config{
		Endpoint:  endpoint,
		Bucket:    config.Bucket,
		AccessKey: config.AccessKey,
		SecretKey: config.SecretKey,
		Region:    region,
	})
}

// AWSEndpointForRegion returns the S3 endpoint for a region.
func AWSEndpointForRegion(region string) (string, error) {
	endpoint, ok := awsEndpoints[region]
	if !ok {
		return "", fmt.Errorf("unknown AWS region: %s", region)
	}
	return endpoint, nil
}

// R2Config holds Cloudflare R2-specific configuration.
type R2Config struct {
	AccountID string // Cloudflare account ID
	Bucket    string
	AccessKey string
	SecretKey string
}

// NewR2Client creates a Client for Cloudflare R2. R2 exposes an
// S3-compatible API at <accountid>.r2.cloudflarestorage.com and does
// not use regions; the signing region is the literal "auto".
func NewR2Client(config *R2Config) *Client {
	return NewClient(&Config{
		Endpoint:  fmt.Sprintf("%s.r2.cloudflarestorage.com", config.AccountID),
		Bucket:    config.Bucket,
		AccessKey: config.AccessKey,
		SecretKey: config.SecretKey,
		Region:    "auto",
	})
}

// IsValidR2AccountID reports whether the account ID looks like a
// Cloudflare account ID (32 hex characters).
func IsValidR2AccountID(accountID string) bool {
	if len(accountID) != 32 {
		return false
	}
	for _, c := range accountID {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// MinIOConfig holds MinIO-specific configuration.
type MinIOConfig struct {
	Endpoint  string // Server endpoint, e.g. "localhost:9000"
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewMinIOClient creates a Client for a MinIO server. MinIO requires
// path-style URLs (endpoint/bucket/key).
func NewMinIOClient(config *MinIOConfig) *Client {
	endpoint := config.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if config.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	return NewClient(&Config{
		Endpoint:       endpoint,
		Bucket:         config.Bucket,
		AccessKey:      config.AccessKey,
		SecretKey:      config.SecretKey,
		Region:         "us-east-1", // MinIO ignores the region but signing needs one
		ForcePathStyle: true,
	})
}
