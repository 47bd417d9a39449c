package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Bet errors
var (
	// ErrBetNotFound is returned when no bet matches the given criteria.
	ErrBetNotFound = errors.New("bet not found")

	// ErrBetExists is returned when a bet already exists for a deposit txid.
	// Callers treat this as "someone else won the race" and re-read.
	ErrBetExists = errors.New("bet already exists for this deposit")

	// ErrBetAlreadyRolled is returned when a roll is attempted on a bet whose
	// roll_result is already set. Rolls are write-once.
	ErrBetAlreadyRolled = errors.New("bet is already rolled")

	// ErrBetNotSettled is returned when a fairness proof is requested for a
	// bet that has not rolled yet.
	ErrBetNotSettled = errors.New("bet is not settled yet")

	// ErrBetTooSmall is returned when a deposit amount is below the configured minimum.
	ErrBetTooSmall = errors.New("bet amount is below the minimum")

	// ErrBetTooLarge is returned when a deposit amount exceeds the configured maximum.
	ErrBetTooLarge = errors.New("bet amount is above the maximum")

	// ErrInvalidMultiplier is returned when a wallet's multiplier is outside the
	// configured bounds.
	ErrInvalidMultiplier = errors.New("multiplier is outside the allowed range")

	// ErrInvalidChance is returned when a win chance is not strictly inside
	// (0, 100), or when chance x multiplier would exceed 100.
	ErrInvalidChance = errors.New("invalid win chance")
)

// Wallet / vault errors
var (
	// ErrWalletNotFound is returned when no vault wallet matches the given criteria.
	ErrWalletNotFound = errors.New("vault wallet not found")

	// ErrWalletExists is returned when registering a vault whose address is
	// already stored.
	ErrWalletExists = errors.New("vault wallet already exists for this address")

	// ErrNotVaultAddress is returned when a deposit pays an address that is not
	// an active vault. The detection was a false positive; no bet is created.
	ErrNotVaultAddress = errors.New("address is not a vault address")

	// ErrWalletHasFunds is returned when deleting a wallet that has received
	// deposits; the caller must confirm explicitly.
	ErrWalletHasFunds = errors.New("vault wallet has received funds")

	// ErrVaultDepleted is returned when a vault has no spendable UTXOs left.
	ErrVaultDepleted = errors.New("vault wallet is depleted")

	// ErrInsufficientFunds is returned when no UTXO combination covers
	// payout + fee buffer.
	ErrInsufficientFunds = errors.New("insufficient vault funds for payout")
)

// Seed errors
var (
	// ErrSeedNotFound is returned when no server seed matches the given criteria.
	ErrSeedNotFound = errors.New("server seed not found")

	// ErrSeedExists is returned when creating a seed for a date that already has one.
	ErrSeedExists = errors.New("server seed already exists for this date")

	// ErrSeedImmutable is returned on any mutation of a seed whose date is not
	// strictly in the future. Past seeds are the audit trail.
	ErrSeedImmutable = errors.New("server seed is immutable once its date has started")

	// ErrSeedNotRevealed is returned when a verification needs a server seed
	// whose calendar date has not ended yet.
	ErrSeedNotRevealed = errors.New("server seed is not revealed yet")

	// ErrNonceConflict is returned when a nonce claim loses the race to another
	// roll for the same user. The claim loop re-reads and takes the next value.
	ErrNonceConflict = errors.New("user seed nonce moved")
)

// User / transaction errors
var (
	// ErrUserNotFound is returned when no user matches the given criteria.
	ErrUserNotFound = errors.New("user not found")

	// ErrTxNotFound is returned when no detected transaction matches the txid.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrTxAlreadyProcessed is returned when a transaction is flagged processed
	// but the caller expected to attach a new bet to it.
	ErrTxAlreadyProcessed = errors.New("transaction is already processed")

	// ErrInvalidAddress is returned when a Bitcoin address fails to decode for
	// the configured network.
	ErrInvalidAddress = errors.New("invalid bitcoin address")
)

// Payout errors
var (
	// ErrPayoutNotFound is returned when no payout matches the given criteria.
	ErrPayoutNotFound = errors.New("payout not found")

	// ErrPayoutExists is returned when a second payout is created for the same
	// bet. The unique bet_id index enforces at most one.
	ErrPayoutExists = errors.New("payout already exists for this bet")

	// ErrPayoutNotEligible is returned when a bet fails the payout gate
	// (not a win, zero amount, wrong status, or unconfirmed deposit).
	ErrPayoutNotEligible = errors.New("bet is not eligible for payout")

	// ErrNoRecipient is returned when neither the deposit's from address nor the
	// user's address is usable as a payout destination. Not retryable.
	ErrNoRecipient = errors.New("no payout recipient address")

	// ErrRetriesExhausted is returned when a payout has consumed all its attempts.
	ErrRetriesExhausted = errors.New("payout retries exhausted")
)

// Explorer errors
var (
	// ErrExplorerUnavailable is returned on timeouts and 5xx responses from the
	// explorer REST API. Retryable.
	ErrExplorerUnavailable = errors.New("explorer API unavailable")

	// ErrBroadcastFailed is returned when both broadcast endpoints reject or
	// time out for a transient reason. Retryable.
	ErrBroadcastFailed = errors.New("transaction broadcast failed")

	// ErrBroadcastRejected is returned when the explorer rejects a transaction
	// for a structural reason (bad signature, malformed tx). Not retryable.
	ErrBroadcastRejected = errors.New("transaction rejected by network")

	// ErrWrongNetwork is returned when the explorer endpoint serves a different
	// chain than configured. Fatal at startup.
	ErrWrongNetwork = errors.New("explorer serves a different network")
)

// Crypto errors
var (
	// ErrCiphertextInvalid is returned when an encrypted private key fails
	// authentication. Payout-fatal; never retried.
	ErrCiphertextInvalid = errors.New("ciphertext failed authentication")

	// ErrMasterKeyInvalid is returned when the master key has the wrong length.
	ErrMasterKeyInvalid = errors.New("master encryption key is invalid")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid credential is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller's IP or key fails an allowlist check.
	ErrForbidden = errors.New("forbidden")

	// ErrTokenExpired is returned when an operator session token has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its signature
	// does not match.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrInvalidCredentials is returned when operator login credentials are wrong.
	ErrInvalidCredentials = errors.New("invalid operator credentials")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrBetNotFound,
	ErrWalletNotFound,
	ErrSeedNotFound,
	ErrUserNotFound,
	ErrTxNotFound,
	ErrPayoutNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this instead of comparing error values directly
// when you need to translate domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict (e.g.
// duplicate seed dates or double-rolls).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrBetExists,
		ErrBetAlreadyRolled,
		ErrBetNotSettled,
		ErrSeedExists,
		ErrSeedImmutable,
		ErrTxAlreadyProcessed,
		ErrWalletHasFunds,
		ErrWalletExists,
		ErrPayoutExists,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsUserError returns true for deposit validation failures. These mark the
// transaction processed and create no bet; they are never retried.
func IsUserError(err error) bool {
	userErrors := []error{
		ErrBetTooSmall,
		ErrBetTooLarge,
		ErrInvalidMultiplier,
		ErrInvalidChance,
		ErrNotVaultAddress,
		ErrInvalidAddress,
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable returns true for transient external failures that the payout
// retry loop may attempt again.
func IsRetryable(err error) bool {
	retryable := []error{
		ErrExplorerUnavailable,
		ErrBroadcastFailed,
		ErrInsufficientFunds,
		ErrVaultDepleted,
	}
	for _, target := range retryable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsPayoutFatal returns true for failures that must never be retried:
// tampered key material, structurally rejected transactions, or a missing
// recipient.
func IsPayoutFatal(err error) bool {
	fatal := []error{
		ErrCiphertextInvalid,
		ErrBroadcastRejected,
		ErrNoRecipient,
	}
	for _, target := range fatal {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrInvalidCredentials,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
