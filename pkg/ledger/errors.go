package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a voucher or shadow entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMatchConflict is returned when a match claim loses a race against
	// another claim. The shadow entry stays pending for the next sweep.
	ErrMatchConflict = errors.New("match candidate already claimed")
)

// ValidationError reports a voucher that was rejected before any write.
type ValidationError struct {
	VoucherID string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.VoucherID == "" {
		return fmt.Sprintf("invalid voucher: %s", e.Reason)
	}
	return fmt.Sprintf("invalid voucher %s: %s", e.VoucherID, e.Reason)
}

// ConsistencyKind names the invariant that was found broken.
type ConsistencyKind string

const (
	ChainDivergence      ConsistencyKind = "chain_divergence"
	TrialBalanceMismatch ConsistencyKind = "trial_balance_mismatch"
)

// ConsistencyError reports a broken ledger-wide invariant.
// It never blocks admission of new balanced vouchers.
type ConsistencyError struct {
	Kind   ConsistencyKind
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger consistency error (%s): %s", e.Kind, e.Detail)
}
