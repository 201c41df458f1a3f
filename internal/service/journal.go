package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"
	"erp-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// JournalPoster writes balanced double-entry sets to the general ledger
type JournalPoster struct {
	ledger LedgerStore
	logger *zap.Logger
}

// NewJournalPoster creates a new journal poster
func NewJournalPoster(ledger LedgerStore) *JournalPoster {
	return &JournalPoster{
		ledger: ledger,
		logger: util.ComponentLogger("journal"),
	}
}

// EntrySpec describes one side of a transaction before its account is resolved.
type EntrySpec struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// NewEntry builds a posted journal row against the account with the given
// code. An unknown code fails here, before anything is written.
func (p *JournalPoster) NewEntry(
	ctx context.Context,
	reference, description string,
	spec EntrySpec,
	actor string,
	at time.Time,
) (models.JournalEntry, error) {
	account, err := p.ledger.GetAccountByCode(ctx, spec.AccountCode)
	if err != nil {
		return models.JournalEntry{}, err
	}

	return models.JournalEntry{
		Reference:   reference,
		Description: description,
		AccountID:   account.ID,
		AccountCode: account.Code,
		AccountName: account.Name,
		AccountType: account.Type,
		Debit:       spec.Debit,
		Credit:      spec.Credit,
		Status:      models.JournalPosted,
		CreatedBy:   actor,
		Date:        at,
	}, nil
}

// NewPair builds the two rows moving amount from creditCode to debitCode.
func (p *JournalPoster) NewPair(
	ctx context.Context,
	reference, description, debitCode, creditCode string,
	amount decimal.Decimal,
	actor string,
	at time.Time,
) ([]models.JournalEntry, error) {
	debit, err := p.NewEntry(ctx, reference, description,
		EntrySpec{AccountCode: debitCode, Debit: amount, Credit: decimal.Zero}, actor, at)
	if err != nil {
		return nil, err
	}
	credit, err := p.NewEntry(ctx, reference, description,
		EntrySpec{AccountCode: creditCode, Debit: decimal.Zero, Credit: amount}, actor, at)
	if err != nil {
		return nil, err
	}
	return []models.JournalEntry{debit, credit}, nil
}

// PostSet validates and writes one transaction. Nothing is written unless the
// whole set balances.
func (p *JournalPoster) PostSet(ctx context.Context, entries []models.JournalEntry) error {
	ctx, span := util.StartSpan(ctx, "JournalPoster.PostSet")
	defer span.End()

	if err := ValidateSet(entries); err != nil {
		util.JournalSetsRejectedTotal.WithLabelValues(rejectionReason(err)).Inc()
		return util.RecordError(span, err)
	}
	span.SetAttributes(attribute.String("reference", entries[0].Reference))

	if err := p.ledger.PostJournalEntries(ctx, entries); err != nil {
		util.JournalSetsRejectedTotal.WithLabelValues("store").Inc()
		return util.RecordError(span, fmt.Errorf("failed to post journal %s: %w", entries[0].Reference, err))
	}

	util.JournalSetsPostedTotal.Inc()
	p.logger.Info("Journal posted",
		zap.String("reference", entries[0].Reference),
		zap.Int("entries", len(entries)))
	return nil
}

// ValidateSet checks that entries form one balanced transaction: at least two
// rows, a single reference, resolved and typed accounts, exactly one positive
// side per row and equal totals.
func ValidateSet(entries []models.JournalEntry) error {
	if len(entries) < 2 {
		return fmt.Errorf("journal set needs at least two entries, got %d: %w",
			len(entries), apperrors.ErrUnbalancedEntry)
	}

	reference := entries[0].Reference
	if reference == "" {
		return fmt.Errorf("journal set has no reference: %w", apperrors.ErrValidation)
	}

	debits, credits := decimal.Zero, decimal.Zero
	for i, e := range entries {
		if e.Reference != reference {
			return fmt.Errorf("entry %d references %s, expected %s: %w",
				i, e.Reference, reference, apperrors.ErrValidation)
		}
		if e.AccountID == 0 {
			return fmt.Errorf("entry %d has no resolved account: %w", i, apperrors.ErrUnknownAccount)
		}
		// The balance sign depends on the type; an untyped row would be posted with the wrong sign.
		if !models.ValidAccountType(e.AccountType) {
			return fmt.Errorf("entry %d account %d has type %q: %w",
				i, e.AccountID, e.AccountType, apperrors.ErrUnknownAccount)
		}
		if e.Debit.IsNegative() || e.Credit.IsNegative() {
			return fmt.Errorf("entry %d has a negative amount: %w", i, apperrors.ErrInvalidAmount)
		}
		if e.Debit.IsPositive() == e.Credit.IsPositive() {
			return fmt.Errorf("entry %d must have exactly one nonzero side: %w", i, apperrors.ErrValidation)
		}
		debits = debits.Add(e.Debit)
		credits = credits.Add(e.Credit)
	}

	if !debits.Equal(credits) {
		return fmt.Errorf("%s: debits %s != credits %s: %w",
			reference, debits.StringFixed(2), credits.StringFixed(2), apperrors.ErrUnbalancedEntry)
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnbalancedEntry):
		return "unbalanced"
	case errors.Is(err, apperrors.ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, apperrors.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "invalid"
	}
}
