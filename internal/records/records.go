// Package records defines the pharmacy record types the cache domains hold
// and the snapshot codecs that restore them with concrete types across
// restarts.
package records

import (
	"time"

	"github.com/shopspring/decimal"
)

// Domain names for the analytics screens. Each is an independent collection
// of cached buckets.
const (
	DomainTransactions     = "transactions"
	DomainExpenses         = "expenses"
	DomainDashboardSummary = "dashboardSummary"
	DomainProfitLoss       = "profitLoss"
	DomainExpenseAnalysis  = "expenseAnalysis"
)

// Transaction is one sale at the counter. Money fields use decimal to keep
// dashboard sums exact.
type Transaction struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customer_id,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Paid         decimal.Decimal `json:"paid"`
	Due          decimal.Decimal `json:"due"`
	Method       string          `json:"method,omitempty"`
	Date         time.Time       `json:"date"`
}

// RecordID returns the stable identity used by optimistic mutations.
func (t Transaction) RecordID() int64 { return t.ID }

// Expense is one outgoing payment: stock purchase, rent, utilities.
type Expense struct {
	ID       int64           `json:"id"`
	Category string          `json:"category"`
	Note     string          `json:"note,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
}

// RecordID returns the stable identity used by optimistic mutations.
func (e Expense) RecordID() int64 { return e.ID }

// SummaryRow is one aggregated figure on a dashboard (revenue, profit, a
// category slice of an expense chart). Summary domains are read-only from
// the UI's point of view but still cached and persisted like everything
// else.
type SummaryRow struct {
	ID    int64           `json:"id"`
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// RecordID returns the stable identity used by optimistic mutations.
func (r SummaryRow) RecordID() int64 { return r.ID }
