package errors

import "fmt"

// Custody-specific sentinel errors
var (
	// ErrDuplicateTransaction indicates a transaction hash was already credited
	ErrDuplicateTransaction = ErrConflict

	// ErrInsufficientBalance indicates a tenant balance cannot cover a withdrawal
	ErrInsufficientBalance = ErrInvalidInput
)

// DuplicateTransactionError is returned when a credit request carries a
// transaction hash that has already produced a ledger entry. Callers that
// treat crediting as idempotent should absorb this as success.
func DuplicateTransactionError(txHash string) *DomainError {
	return &DomainError{
		Err:     ErrConflict,
		Code:    "DUPLICATE_TRANSACTION",
		Message: "transaction has already been credited",
		Details: map[string]interface{}{
			"tx_hash": txHash,
		},
	}
}

// UnknownAddressError is returned when an observed transfer references a
// deposit address that was never allocated by this service.
func UnknownAddressError(address string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    "UNKNOWN_ADDRESS",
		Message: "deposit address is not managed by this service",
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// AddressDerivationError is returned when the key derivation provider
// produced an address that fails format validation, or failed outright.
func AddressDerivationError(index int64, err error) *DomainError {
	de := &DomainError{
		Err:     ErrInternal,
		Code:    "ADDRESS_DERIVATION_FAILED",
		Message: fmt.Sprintf("failed to derive deposit address at index %d", index),
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// UpstreamProviderError wraps a chain provider failure. Always retryable.
func UpstreamProviderError(operation string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrServiceUnavailable,
		Code:      "UPSTREAM_PROVIDER_ERROR",
		Message:   fmt.Sprintf("chain provider call %s failed", operation),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// InsufficientBalanceError is returned when a withdrawal exceeds the
// tenant's available balance.
func InsufficientBalanceError(balance, requested string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "INSUFFICIENT_BALANCE",
		Message: "balance is insufficient for the requested withdrawal",
		Details: map[string]interface{}{
			"balance":   balance,
			"requested": requested,
		},
	}
}

// InvalidWithdrawalAddressError is returned when the destination address
// fails format validation.
func InvalidWithdrawalAddressError(address string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "INVALID_WITHDRAWAL_ADDRESS",
		Message: "withdrawal address failed validation",
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// InvalidTransitionError is returned when a pending transaction status
// change violates the state machine.
func InvalidTransitionError(from, to string) *DomainError {
	return &DomainError{
		Err:     ErrConflict,
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
		Details: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	}
}
