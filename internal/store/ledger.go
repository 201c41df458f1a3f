package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetAccountByCode looks up a ledger account by its chart-of-accounts code
func (s *Store) GetAccountByCode(ctx context.Context, code string) (*models.Account, error) {
	var account models.Account
	err := s.db.GetContext(ctx, &account,
		"SELECT id, code, name, type, balance, created_at, updated_at FROM accounts WHERE code = $1", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account code %s: %w", code, apperrors.ErrUnknownAccount)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// PostJournalEntries writes every entry of a transaction and applies each
// entry's balance delta to its account, all in one database transaction.
func (s *Store) PostJournalEntries(ctx context.Context, entries []models.JournalEntry) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for i := range entries {
			e := &entries[i]
			err := tx.GetContext(ctx, &e.ID,
				`INSERT INTO journal_entries (reference, description, account_id, account_code, account_name,
				 debit, credit, status, created_by, date)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 RETURNING id`,
				e.Reference, e.Description, e.AccountID, e.AccountCode, e.AccountName,
				e.Debit, e.Credit, e.Status, e.CreatedBy, e.Date)
			if err != nil {
				return fmt.Errorf("failed to insert journal entry: %w", err)
			}

			res, err := tx.ExecContext(ctx,
				"UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2",
				e.BalanceDelta(), e.AccountID)
			if err != nil {
				return fmt.Errorf("failed to update account balance: %w", err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("account %d: %w", e.AccountID, apperrors.ErrUnknownAccount)
			}
		}
		return nil
	})
}

// GetEntriesByReference lists the journal entries of one transaction
func (s *Store) GetEntriesByReference(ctx context.Context, reference string) ([]models.JournalEntry, error) {
	var entries []models.JournalEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT id, reference, description, account_id, account_code, account_name, debit, credit, status, created_by, date
		 FROM journal_entries WHERE reference = $1 ORDER BY id`, reference)
	return entries, err
}
