package shared

import (
	"errors"
	"fmt"
)

// Error classes. Every ledger error wraps exactly one of these so callers can
// classify failures with errors.Is.
var (
	// ErrValidation marks malformed input rejected before any write.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrNotFound marks a referenced record that does not exist.
	ErrNotFound = errors.New("accounting: not found")
	// ErrConflict marks a request that contradicts current ledger state.
	ErrConflict = errors.New("accounting: conflict")
	// ErrIntegrity marks an unexpected failure inside a unit of work.
	ErrIntegrity = errors.New("accounting: integrity failure")
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: journal lines must balance", ErrValidation)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: journal requires at least two lines", ErrValidation)
	// ErrAccountInactive indicates a posting to a disabled account.
	ErrAccountInactive = fmt.Errorf("%w: account is inactive", ErrValidation)
	// ErrHeaderAccount indicates a posting to a grouping account.
	ErrHeaderAccount = fmt.Errorf("%w: header accounts cannot receive postings", ErrValidation)
	// ErrAccountInUse indicates the account still has ledger lines or children.
	ErrAccountInUse = fmt.Errorf("%w: account has ledger lines or child accounts", ErrValidation)
	// ErrInvalidParent indicates the parent cannot hold the child account.
	ErrInvalidParent = fmt.Errorf("%w: parent must be a header account of the same type", ErrValidation)
	// ErrNotPosted indicates the transaction was never posted.
	ErrNotPosted = fmt.Errorf("%w: transaction is not posted", ErrValidation)

	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = fmt.Errorf("%w: account", ErrNotFound)
	// ErrTransactionNotFound indicates a missing transaction.
	ErrTransactionNotFound = fmt.Errorf("%w: transaction", ErrNotFound)
	// ErrPeriodNotFound indicates no period exists for the date.
	ErrPeriodNotFound = fmt.Errorf("%w: accounting period", ErrNotFound)
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = fmt.Errorf("%w: account mapping", ErrNotFound)
	// ErrCounterpartyNotFound indicates a missing customer or supplier.
	ErrCounterpartyNotFound = fmt.Errorf("%w: counterparty", ErrNotFound)
	// ErrDocumentNotFound indicates a missing receivable or payable.
	ErrDocumentNotFound = fmt.Errorf("%w: subledger document", ErrNotFound)

	// ErrAlreadyVoid indicates a second void of the same transaction.
	ErrAlreadyVoid = fmt.Errorf("%w: transaction already voided", ErrConflict)
	// ErrDuplicatePosting indicates the transaction number was already posted.
	ErrDuplicatePosting = fmt.Errorf("%w: transaction number already posted", ErrConflict)
	// ErrPeriodClosed indicates the target period does not accept postings.
	ErrPeriodClosed = fmt.Errorf("%w: accounting period is closed", ErrConflict)
	// ErrDuplicateCode indicates the account code is taken within the tenant.
	ErrDuplicateCode = fmt.Errorf("%w: account code already exists", ErrConflict)
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = fmt.Errorf("%w: invalid status transition", ErrConflict)
	// ErrOverpayment indicates a payment larger than the remaining amount.
	ErrOverpayment = fmt.Errorf("%w: payment exceeds remaining amount", ErrConflict)
	// ErrHasPayments indicates a void of a document that already has payments.
	ErrHasPayments = fmt.Errorf("%w: document has recorded payments", ErrConflict)
	// ErrControlAccountMissing indicates no AR/AP control account is configured.
	ErrControlAccountMissing = fmt.Errorf("%w: control account not configured", ErrConflict)
	// ErrDocumentVoid indicates a payment against a voided document.
	ErrDocumentVoid = fmt.Errorf("%w: document is void", ErrConflict)
)

// Integrity wraps an unexpected storage failure so it classifies as
// ErrIntegrity while keeping the cause inspectable.
func Integrity(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrIntegrity) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrIntegrity, op, err)
}
