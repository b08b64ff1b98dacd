// Package models provides data model definitions for the Fakture sync core.
package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EstimateStatus tracks the lifecycle of an estimate.
type EstimateStatus string

const (
	EstimateStatusDraft    EstimateStatus = "draft"
	EstimateStatusSent     EstimateStatus = "sent"
	EstimateStatusAccepted EstimateStatus = "accepted"
	EstimateStatusDeclined EstimateStatus = "declined"
	EstimateStatusExpired  EstimateStatus = "expired"
)

// Estimate represents a quote that may later convert to an invoice.
type Estimate struct {
	Meta
	Number     string          `db:"number" json:"number"`
	ClientID   UUID            `db:"client_id" json:"client_id"`
	Status     EstimateStatus  `db:"status" json:"status"`
	Currency   string          `db:"currency" json:"currency"`
	Items      []LineItem      `db:"-" json:"items,omitempty"`
	Subtotal   decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxRate    decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	Total      decimal.Decimal `db:"total" json:"total"`
	ExpiryDate string          `db:"expiry_date" json:"expiry_date,omitempty"`
	Notes      string          `db:"notes" json:"notes,omitempty"`
}

// TableName returns the table name for Estimate.
func (Estimate) TableName() string {
	return "estimates"
}

// RecordKind returns KindEstimate.
func (Estimate) RecordKind() Kind {
	return KindEstimate
}

// ToInvoice converts an accepted estimate into a draft invoice.
// The caller assigns the invoice number and persists the result.
func (e *Estimate) ToInvoice() *Invoice {
	inv := &Invoice{
		ClientID: e.ClientID,
		Status:   InvoiceStatusDraft,
		Currency: e.Currency,
		Items:    append([]LineItem(nil), e.Items...),
		TaxRate:  e.TaxRate,
		Notes:    e.Notes,
	}
	inv.UserID = e.UserID
	inv.Recalculate()
	return inv
}

// Validate checks required estimate fields.
func (e *Estimate) Validate() error {
	if e.Number == "" {
		return fmt.Errorf("estimate number is required")
	}
	if e.ClientID == "" {
		return fmt.Errorf("estimate client_id is required")
	}
	switch e.Status {
	case EstimateStatusDraft, EstimateStatusSent, EstimateStatusAccepted,
		EstimateStatusDeclined, EstimateStatusExpired:
	case "":
		return fmt.Errorf("estimate status is required")
	default:
		return fmt.Errorf("unknown estimate status %q", e.Status)
	}
	return nil
}
