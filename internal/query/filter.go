// Package query holds the read-only views over the transaction log.
package query

import (
	"strings"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
)

// TypeAny matches both legs.
const TypeAny domain.TransactionType = ""

// Filter narrows a transaction list by description text and leg type.
type Filter struct {
	Text string
	Type domain.TransactionType
}

// ParseType accepts "Debit", "Credit" in any case, and "" or "any".
func ParseType(value string) (domain.TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "any", "all":
		return TypeAny, nil
	case "debit":
		return domain.TransactionTypeDebit, nil
	case "credit":
		return domain.TransactionTypeCredit, nil
	}
	return TypeAny, errors.NewAppErrorf(errors.InvalidInput, "unknown transaction type %q", value)
}

// Matches applies the text and type rules; it says nothing about accounts.
func (f Filter) Matches(tx *domain.Transaction) bool {
	if f.Type != TypeAny && tx.Type != f.Type {
		return false
	}
	if f.Text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(tx.Description), strings.ToLower(f.Text))
}

// Apply returns the records matching f, keeping their order.
func (f Filter) Apply(txs []*domain.Transaction) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// FilterTransactions keeps records that touch one of accountNumbers and pass
// f. An empty account set matches nothing.
func FilterTransactions(txs []*domain.Transaction, accountNumbers []string, f Filter) []*domain.Transaction {
	owned := numberSet(accountNumbers)

	out := make([]*domain.Transaction, 0)
	for _, tx := range txs {
		if !owned[tx.FromAccountNumber] && !owned[tx.ToAccountNumber] {
			continue
		}
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// ViewerLegs keeps, for each record, only the leg a holder of accountNumbers
// should see: the Debit leg when the sender is theirs, otherwise the Credit
// leg when the receiver is theirs. A transfer between two of the viewer's own
// accounts therefore shows once, as its debit.
func ViewerLegs(txs []*domain.Transaction, accountNumbers []string) []*domain.Transaction {
	owned := numberSet(accountNumbers)

	out := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		switch tx.Type {
		case domain.TransactionTypeDebit:
			if owned[tx.FromAccountNumber] {
				out = append(out, tx)
			}
		case domain.TransactionTypeCredit:
			if !owned[tx.FromAccountNumber] && owned[tx.ToAccountNumber] {
				out = append(out, tx)
			}
		}
	}
	return out
}

func numberSet(accountNumbers []string) map[string]bool {
	set := make(map[string]bool, len(accountNumbers))
	for _, number := range accountNumbers {
		set[number] = true
	}
	return set
}
