// Package models provides data model definitions for the Fakture sync core.
package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InvoiceStatus tracks the billing lifecycle of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// LineItem is a single billable line on an invoice or estimate.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Total returns quantity * unit price.
func (l *LineItem) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Invoice represents a customer invoice.
type Invoice struct {
	Meta
	Number    string          `db:"number" json:"number"`
	ClientID  UUID            `db:"client_id" json:"client_id"`
	Status    InvoiceStatus   `db:"status" json:"status"`
	Currency  string          `db:"currency" json:"currency"`
	Items     []LineItem      `db:"-" json:"items,omitempty"`
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxRate   decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	TaxAmount decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	Total     decimal.Decimal `db:"total" json:"total"`
	IssueDate string          `db:"issue_date" json:"issue_date,omitempty"`
	DueDate   string          `db:"due_date" json:"due_date,omitempty"`
	Notes     string          `db:"notes" json:"notes,omitempty"`
}

// TableName returns the table name for Invoice.
func (Invoice) TableName() string {
	return "invoices"
}

// RecordKind returns KindInvoice.
func (Invoice) RecordKind() Kind {
	return KindInvoice
}

// Recalculate recomputes subtotal, tax and total from the line items.
func (i *Invoice) Recalculate() {
	subtotal := decimal.Zero
	for idx := range i.Items {
		i.Items[idx].Amount = i.Items[idx].Total()
		subtotal = subtotal.Add(i.Items[idx].Amount)
	}
	i.Subtotal = subtotal
	i.TaxAmount = subtotal.Mul(i.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
	i.Total = subtotal.Add(i.TaxAmount)
}

// Validate checks required invoice fields.
func (i *Invoice) Validate() error {
	if i.Number == "" {
		return fmt.Errorf("invoice number is required")
	}
	if i.ClientID == "" {
		return fmt.Errorf("invoice client_id is required")
	}
	switch i.Status {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusVoid:
	case "":
		return fmt.Errorf("invoice status is required")
	default:
		return fmt.Errorf("unknown invoice status %q", i.Status)
	}
	if i.Total.IsNegative() {
		return fmt.Errorf("invoice total cannot be negative")
	}
	return nil
}
