// Package models provides data model definitions for the Fakture sync core.
package models

import (
	"fmt"
	"strings"
)

// Client represents a billable customer.
type Client struct {
	Meta
	Name     string `db:"name" json:"name"`
	Email    string `db:"email" json:"email,omitempty"`
	Phone    string `db:"phone" json:"phone,omitempty"`
	Company  string `db:"company" json:"company,omitempty"`
	Address  string `db:"address" json:"address,omitempty"`
	City     string `db:"city" json:"city,omitempty"`
	Country  string `db:"country" json:"country,omitempty"`
	TaxID    string `db:"tax_id" json:"tax_id,omitempty"`
	Notes    string `db:"notes" json:"notes,omitempty"`
}

// TableName returns the table name for Client.
func (Client) TableName() string {
	return "clients"
}

// RecordKind returns KindClient.
func (Client) RecordKind() Kind {
	return KindClient
}

// Validate checks required client fields.
func (c *Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("client name is required")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("client email %q is not valid", c.Email)
	}
	return nil
}
