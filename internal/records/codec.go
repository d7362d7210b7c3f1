package records

import (
	"encoding/json"
	"fmt"

	"github.com/rxledger/pharmacache/internal/cache"
)

// The codecs below are the explicit per-domain serializers the snapshot
// uses. Each decodes into its concrete type, so dates come back as
// time.Time and amounts as decimal.Decimal by contract — no reflective
// repair of whatever generic JSON left behind.

type transactionCodec struct{}

// TransactionCodec persists the transactions domain.
func TransactionCodec() cache.Codec { return transactionCodec{} }

func (transactionCodec) Domain() string { return DomainTransactions }

func (transactionCodec) EncodeRecords(recs []cache.Record) (json.RawMessage, error) {
	out := make([]Transaction, 0, len(recs))
	for _, r := range recs {
		t, ok := r.(Transaction)
		if !ok {
			return nil, fmt.Errorf("transactions bucket holds %T, want Transaction", r)
		}
		out = append(out, t)
	}
	return json.Marshal(out)
}

func (transactionCodec) DecodeRecords(data json.RawMessage) ([]cache.Record, error) {
	var ts []Transaction
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	recs := make([]cache.Record, len(ts))
	for i, t := range ts {
		recs[i] = t
	}
	return recs, nil
}

type expenseCodec struct{}

// ExpenseCodec persists the expenses domain.
func ExpenseCodec() cache.Codec { return expenseCodec{} }

func (expenseCodec) Domain() string { return DomainExpenses }

func (expenseCodec) EncodeRecords(recs []cache.Record) (json.RawMessage, error) {
	out := make([]Expense, 0, len(recs))
	for _, r := range recs {
		e, ok := r.(Expense)
		if !ok {
			return nil, fmt.Errorf("expenses bucket holds %T, want Expense", r)
		}
		out = append(out, e)
	}
	return json.Marshal(out)
}

func (expenseCodec) DecodeRecords(data json.RawMessage) ([]cache.Record, error) {
	var es []Expense
	if err := json.Unmarshal(data, &es); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	recs := make([]cache.Record, len(es))
	for i, e := range es {
		recs[i] = e
	}
	return recs, nil
}

type summaryCodec struct {
	domain string
}

// SummaryCodec persists one of the aggregated dashboard domains
// (dashboardSummary, profitLoss, expenseAnalysis).
func SummaryCodec(domain string) cache.Codec { return summaryCodec{domain: domain} }

func (c summaryCodec) Domain() string { return c.domain }

func (c summaryCodec) EncodeRecords(recs []cache.Record) (json.RawMessage, error) {
	out := make([]SummaryRow, 0, len(recs))
	for _, r := range recs {
		row, ok := r.(SummaryRow)
		if !ok {
			return nil, fmt.Errorf("%s bucket holds %T, want SummaryRow", c.domain, r)
		}
		out = append(out, row)
	}
	return json.Marshal(out)
}

func (c summaryCodec) DecodeRecords(data json.RawMessage) ([]cache.Record, error) {
	var rows []SummaryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.domain, err)
	}
	recs := make([]cache.Record, len(rows))
	for i, row := range rows {
		recs[i] = row
	}
	return recs, nil
}

// AllCodecs returns codecs for every persisted domain, in the order the
// service registers them.
func AllCodecs() []cache.Codec {
	return []cache.Codec{
		TransactionCodec(),
		ExpenseCodec(),
		SummaryCodec(DomainDashboardSummary),
		SummaryCodec(DomainProfitLoss),
		SummaryCodec(DomainExpenseAnalysis),
	}
}
