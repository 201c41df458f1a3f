package service

import (
	"context"
	"testing"
	"time"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(ref string, accountID int64, debit, credit string) models.JournalEntry {
	return models.JournalEntry{
		Reference:   ref,
		AccountID:   accountID,
		AccountType: models.AccountAsset,
		Debit:     decimal.RequireFromString(debit),
		Credit:    decimal.RequireFromString(credit),
	}
}

func TestValidateSet(t *testing.T) {
	tests := []struct {
		name    string
		entries []models.JournalEntry
		wantErr error
	}{
		{
			name:    "balanced pair",
			entries: []models.JournalEntry{entry("SO-001", 1, "100.50", "0"), entry("SO-001", 2, "0", "100.50")},
		},
		{
			name: "balanced split",
			entries: []models.JournalEntry{
				entry("SO-001", 1, "100", "0"),
				entry("SO-001", 2, "0", "60"),
				entry("SO-001", 3, "0", "40"),
			},
		},
		{
			name:    "unbalanced",
			entries: []models.JournalEntry{entry("SO-001", 1, "100", "0"), entry("SO-001", 2, "0", "99.99")},
			wantErr: apperrors.ErrUnbalancedEntry,
		},
		{
			name:    "single row",
			entries: []models.JournalEntry{entry("SO-001", 1, "100", "0")},
			wantErr: apperrors.ErrUnbalancedEntry,
		},
		{
			name:    "both sides on one row",
			entries: []models.JournalEntry{entry("SO-001", 1, "100", "100"), entry("SO-001", 2, "0", "0")},
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "mixed references",
			entries: []models.JournalEntry{entry("SO-001", 1, "100", "0"), entry("SO-002", 2, "0", "100")},
			wantErr: apperrors.ErrValidation,
		},
		{
			name:    "unresolved account",
			entries: []models.JournalEntry{entry("SO-001", 0, "100", "0"), entry("SO-001", 2, "0", "100")},
			wantErr: apperrors.ErrUnknownAccount,
		},
		{
			name: "untyped account",
			entries: []models.JournalEntry{
				{Reference: "SO-001", AccountID: 1, Debit: decimal.RequireFromString("100"), Credit: decimal.Zero},
				entry("SO-001", 2, "0", "100"),
			},
			wantErr: apperrors.ErrUnknownAccount,
		},
		{
			name: "unknown account type",
			entries: []models.JournalEntry{
				entry("SO-001", 1, "100", "0"),
				{Reference: "SO-001", AccountID: 2, AccountType: "contra", Debit: decimal.Zero, Credit: decimal.RequireFromString("100")},
			},
			wantErr: apperrors.ErrUnknownAccount,
		},
		{
			name:    "negative amount",
			entries: []models.JournalEntry{entry("SO-001", 1, "-100", "0"), entry("SO-001", 2, "0", "-100")},
			wantErr: apperrors.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSet(tt.entries)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewPairResolvesAccountsByCode(t *testing.T) {
	f := newFixture()
	at := time.Now()

	entries, err := f.journal.NewPair(context.Background(), "SO-001", "Sales order SO-001",
		"1200", "4000", decimal.RequireFromString("10.00"), "manager-1", at)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Accounts Receivable", entries[0].AccountName)
	assert.Equal(t, models.AccountAsset, entries[0].AccountType)
	assert.Equal(t, "Revenue", entries[1].AccountName)
	assert.Equal(t, models.JournalPosted, entries[1].Status)

	_, err = f.journal.NewPair(context.Background(), "SO-001", "", "1200", "9999",
		decimal.RequireFromString("10.00"), "manager-1", at)
	assert.ErrorIs(t, err, apperrors.ErrUnknownAccount)
}

func TestPostSetMaintainsAccountBalances(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	at := time.Now()

	sale, err := f.journal.NewPair(ctx, "SO-001", "", "1200", "4000", decimal.RequireFromString("899.80"), "u1", at)
	require.NoError(t, err)
	require.NoError(t, f.journal.PostSet(ctx, sale))

	payment, err := f.journal.NewPair(ctx, "INV-001", "", "1000", "1200", decimal.RequireFromString("899.80"), "u1", at)
	require.NoError(t, err)
	require.NoError(t, f.journal.PostSet(ctx, payment))

	assert.Equal(t, "899.80", f.store.balance("1000").StringFixed(2))
	assert.True(t, f.store.balance("1200").IsZero())
	assert.Equal(t, "899.80", f.store.balance("4000").StringFixed(2))
	assertBalanced(t, f.store.allEntries())
}

func TestPostSetWritesNothingWhenUnbalanced(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	entries, err := f.journal.NewPair(ctx, "SO-001", "", "1200", "4000", decimal.RequireFromString("50"), "u1", time.Now())
	require.NoError(t, err)
	entries[1].Credit = decimal.RequireFromString("49")

	err = f.journal.PostSet(ctx, entries)
	assert.ErrorIs(t, err, apperrors.ErrUnbalancedEntry)
	assert.Empty(t, f.store.allEntries())
	assert.True(t, f.store.balance("1200").IsZero())
}

func TestPostSetRejectsEntriesWithoutAccountType(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	entries, err := f.journal.NewPair(ctx, "INV-001", "", "1000", "1200", decimal.RequireFromString("50"), "u1", time.Now())
	require.NoError(t, err)
	entries[0].AccountType = ""

	err = f.journal.PostSet(ctx, entries)
	assert.ErrorIs(t, err, apperrors.ErrUnknownAccount)
	assert.Empty(t, f.store.allEntries())
	assert.True(t, f.store.balance("1000").IsZero())
}
