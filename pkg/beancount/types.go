// Package beancount exports posted vouchers as a Beancount journal.
package beancount

import "github.com/shopspring/decimal"

// Transaction represents a Beancount transaction.
type Transaction struct {
	Date      string            // YYYY-MM-DD
	Narration string            // Transaction description
	Payee     string            // Payee name (optional)
	Tags      []string          // Tags (e.g., ["payment"])
	Links     []string          // Links (e.g., reconciliation group ids)
	Metadata  map[string]string // Metadata key-value pairs
	Postings  []Posting         // Transaction postings
}

// Posting represents a posting in a Beancount transaction.
type Posting struct {
	Account  string          // Account name (e.g., "Expenses:6601-01")
	Amount   decimal.Decimal // Amount (positive for debit, negative for credit)
	Currency string          // Currency code (e.g., "JPY")
	Comment  string          // Posting comment (optional)
}
