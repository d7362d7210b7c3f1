package records

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/pharmacache/internal/cache"
)

func sampleTransactions() []cache.Record {
	return []cache.Record{
		Transaction{
			ID:           7,
			CustomerID:   3,
			CustomerName: "Walk-in",
			Total:        decimal.NewFromInt(1000),
			Paid:         decimal.RequireFromString("999.50"),
			Due:          decimal.RequireFromString("0.50"),
			Method:       "cash",
			Date:         time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC),
		},
		Transaction{
			ID:    8,
			Total: decimal.RequireFromString("245.75"),
			Paid:  decimal.RequireFromString("245.75"),
			Due:   decimal.Zero,
			Date:  time.Date(2025, 1, 1, 14, 5, 0, 0, time.UTC),
		},
	}
}

// TestTransactionCodecRoundTrip verifies records come back fully typed:
// dates as instants, amounts as exact decimals.
func TestTransactionCodecRoundTrip(t *testing.T) {
	codec := TransactionCodec()
	assert.Equal(t, DomainTransactions, codec.Domain())

	in := sampleTransactions()
	raw, err := codec.EncodeRecords(in)
	require.NoError(t, err)

	out, err := codec.DecodeRecords(raw)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first, ok := out[0].(Transaction)
	require.True(t, ok, "decoded record is a concrete Transaction")
	assert.True(t, first.Date.Equal(time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)))
	assert.True(t, first.Paid.Equal(decimal.RequireFromString("999.50")),
		"decimal amount survives exactly")

	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTransactionCodecRejectsForeignRecords(t *testing.T) {
	_, err := TransactionCodec().EncodeRecords([]cache.Record{
		Expense{ID: 1, Category: "rent", Amount: decimal.NewFromInt(100)},
	})
	assert.Error(t, err)
}

func TestExpenseCodecRoundTrip(t *testing.T) {
	codec := ExpenseCodec()
	in := []cache.Record{
		Expense{
			ID:       11,
			Category: "stock",
			Note:     "antibiotics restock",
			Amount:   decimal.RequireFromString("5230.00"),
			Date:     time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	raw, err := codec.EncodeRecords(in)
	require.NoError(t, err)
	out, err := codec.DecodeRecords(raw)
	require.NoError(t, err)

	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSummaryCodecDomains(t *testing.T) {
	rows := []cache.Record{
		SummaryRow{ID: 1, Label: "revenue", Value: decimal.RequireFromString("80500.25")},
		SummaryRow{ID: 2, Label: "profit", Value: decimal.RequireFromString("12300.10")},
	}

	for _, domain := range []string{DomainDashboardSummary, DomainProfitLoss, DomainExpenseAnalysis} {
		t.Run(domain, func(t *testing.T) {
			codec := SummaryCodec(domain)
			assert.Equal(t, domain, codec.Domain())

			raw, err := codec.EncodeRecords(rows)
			require.NoError(t, err)
			out, err := codec.DecodeRecords(raw)
			require.NoError(t, err)
			if diff := cmp.Diff(rows, out); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAllCodecsCoverEveryPersistedDomain(t *testing.T) {
	domains := make(map[string]bool)
	for _, c := range AllCodecs() {
		domains[c.Domain()] = true
	}
	for _, d := range []string{
		DomainTransactions, DomainExpenses,
		DomainDashboardSummary, DomainProfitLoss, DomainExpenseAnalysis,
	} {
		assert.True(t, domains[d], "missing codec for %s", d)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	for _, codec := range AllCodecs() {
		_, err := codec.DecodeRecords([]byte(`{"not":"a list"}`))
		assert.Error(t, err, "codec %s", codec.Domain())
	}
}
