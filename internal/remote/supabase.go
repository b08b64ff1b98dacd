// Package remote provides the client for the remote record backend.
package remote

import "strings"

// SupabaseConfig holds Supabase-specific configuration.
type SupabaseConfig struct {
	ProjectURL string // Project URL (e.g. "https://xyz.supabase.co")
	AnonKey    string // Project anon/service key
	UserToken  string // Per-user JWT after sign-in; optional
}

// NewSupabaseClient creates a RESTClient configured for a Supabase project.
// Supabase exposes PostgREST under /rest/v1.
//
// Example:
//
//	client := NewSupabaseClient(&SupabaseConfig{
//	    ProjectURL: "https://xyz.supabase.co",
//	    AnonKey:    "public-anon-key",
//	})
func NewSupabaseClient(config *SupabaseConfig) *RESTClient {
	endpoint := strings.TrimSuffix(config.ProjectURL, "/")
	if !strings.HasSuffix(endpoint, "/rest/v1") {
		endpoint += "/rest/v1"
	}

	return NewRESTClient(&RESTConfig{
		Endpoint: endpoint,
		APIKey:   config.AnonKey,
		Token:    config.UserToken,
	})
}
