// Package apperrors defines the coded errors returned by the trading services.
// Code is the literal string clients branch on; Details carries the context a
// client needs to retry, adjust or confirm.
package apperrors

import (
	"errors"
	"net/http"
)

// AppError is a structured application error.
type AppError struct {
	Code       string         `json:"error"`
	Message    string         `json:"message"`
	StatusCode int            `json:"-"`
	Retryable  bool           `json:"retryable,omitempty"`
	Details    map[string]any `json:"-"`
	Internal   error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return e.Code + ": " + e.Internal.Error()
	}
	return e.Code
}

func (e *AppError) Unwrap() error { return e.Internal }

// Is matches on Code so a sentinel compares equal to its derived copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func clone(sentinel *AppError) *AppError {
	out := *sentinel
	if sentinel.Details != nil {
		out.Details = make(map[string]any, len(sentinel.Details))
		for k, v := range sentinel.Details {
			out.Details[k] = v
		}
	}
	return &out
}

// Wrap returns a copy of sentinel that carries internal.
func Wrap(sentinel *AppError, internal error) *AppError {
	out := clone(sentinel)
	out.Internal = internal
	return out
}

// WithMessage returns a copy of sentinel with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	out := clone(sentinel)
	out.Message = message
	return out
}

// WithDetails returns a copy of sentinel with kv merged into Details.
func WithDetails(sentinel *AppError, kv map[string]any) *AppError {
	out := clone(sentinel)
	if out.Details == nil {
		out.Details = make(map[string]any, len(kv))
	}
	for k, v := range kv {
		out.Details[k] = v
	}
	return out
}

// As extracts an *AppError from err. Anything else becomes ErrInternal
// wrapping err.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap(ErrInternal, err)
}

// Validation.
var (
	ErrBadRequest         = &AppError{Code: "BAD_REQUEST", Message: "Malformed request body", StatusCode: http.StatusBadRequest}
	ErrBadPrice           = &AppError{Code: "BAD_PRICE", Message: "Price must be a positive amount", StatusCode: http.StatusBadRequest}
	ErrBadShares          = &AppError{Code: "BAD_SHARES", Message: "Share count out of range", StatusCode: http.StatusBadRequest}
	ErrBadCurrency        = &AppError{Code: "BAD_CURRENCY", Message: "Currency must be a 3-letter code", StatusCode: http.StatusBadRequest}
	ErrBadID              = &AppError{Code: "BAD_ID", Message: "Invalid identifier", StatusCode: http.StatusBadRequest}
	ErrMissingShares      = &AppError{Code: "MISSING_SHARES", Message: "Share count is required for fractional houses", StatusCode: http.StatusBadRequest}
	ErrInvalidTotalShares = &AppError{Code: "INVALID_TOTAL_SHARES", Message: "Requested total must be a larger exact multiple of the current total", StatusCode: http.StatusBadRequest}
	ErrMissingUserID      = &AppError{Code: "MISSING_USER_ID", Message: "user_id is required", StatusCode: http.StatusBadRequest}
)

// Conflict / concurrency.
var (
	ErrAlreadyOccupied         = &AppError{Code: "ALREADY_OCCUPIED", Message: "House already has owners", StatusCode: http.StatusConflict}
	ErrAlreadySold             = &AppError{Code: "ALREADY_SOLD", Message: "Listing is no longer active", StatusCode: http.StatusConflict}
	ErrHouseTotalChanged       = &AppError{Code: "HOUSE_TOTAL_CHANGED", Message: "Total shares changed since the proposal was made", StatusCode: http.StatusConflict}
	ErrListingNotActive        = &AppError{Code: "LISTING_NOT_ACTIVE", Message: "Listing is not active", StatusCode: http.StatusConflict}
	ErrPublicListingWillChange = &AppError{Code: "PUBLIC_LISTING_WILL_CHANGE", Message: "Finalizing would change your public listing", StatusCode: http.StatusConflict}
	ErrProposalAlreadyOpen     = &AppError{Code: "PROPOSAL_ALREADY_OPEN", Message: "A split proposal is already open for this house", StatusCode: http.StatusConflict}
	ErrProposalNotOpen         = &AppError{Code: "PROPOSAL_NOT_OPEN", Message: "Split proposal is closed", StatusCode: http.StatusConflict}
	ErrRequestNotPending       = &AppError{Code: "REQUEST_NOT_PENDING", Message: "Limit request was already decided", StatusCode: http.StatusConflict}
	ErrRequestAlreadyPending   = &AppError{Code: "REQUEST_ALREADY_PENDING", Message: "A split limit request is already pending for this house", StatusCode: http.StatusConflict}
	ErrConversationStopped     = &AppError{Code: "CONVERSATION_STOPPED", Message: "Conversation is stopped", StatusCode: http.StatusConflict}
	ErrConversationSold        = &AppError{Code: "CONVERSATION_SOLD", Message: "Conversation already settled", StatusCode: http.StatusConflict}
	ErrCounterDisabled         = &AppError{Code: "COUNTER_DISABLED", Message: "Sellers cannot counter; accept or finalize instead", StatusCode: http.StatusConflict}
	ErrLockTimeout             = &AppError{Code: "LOCK_TIMEOUT", Message: "Resource is busy, retry", StatusCode: http.StatusServiceUnavailable, Retryable: true}
)

// Authorization.
var (
	ErrUnauthorized      = &AppError{Code: "AUTH_REQUIRED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden         = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrNotOwner          = &AppError{Code: "NOT_OWNER", Message: "You do not own shares in this house", StatusCode: http.StatusForbidden}
	ErrNotSeller         = &AppError{Code: "NOT_SELLER", Message: "Only the seller can do this", StatusCode: http.StatusForbidden}
	ErrNotBuyer          = &AppError{Code: "NOT_BUYER", Message: "Only the buyer can do this", StatusCode: http.StatusForbidden}
	ErrNotParticipant    = &AppError{Code: "NOT_PARTICIPANT", Message: "Not a participant of this conversation", StatusCode: http.StatusForbidden}
	ErrNotInitiator      = &AppError{Code: "NOT_INITIATOR", Message: "Only the initiator can cancel", StatusCode: http.StatusForbidden}
	ErrNotMajorityOwner  = &AppError{Code: "NOT_MAJORITY_OWNER", Message: "Direct split requires more than half of the shares", StatusCode: http.StatusForbidden}
	ErrUseDirectSplit    = &AppError{Code: "USE_DIRECT_SPLIT", Message: "Majority owners split directly", StatusCode: http.StatusConflict}
	ErrCannotBuyOwn      = &AppError{Code: "CANNOT_BUY_OWN", Message: "Cannot buy your own listing", StatusCode: http.StatusForbidden}
	ErrCannotMessageSelf = &AppError{Code: "CANNOT_MESSAGE_SELF", Message: "Cannot negotiate with yourself", StatusCode: http.StatusBadRequest}
)

// Resource shortage.
var (
	ErrNotEnoughShares       = &AppError{Code: "NOT_ENOUGH_SHARES", Message: "Not enough shares", StatusCode: http.StatusBadRequest}
	ErrInsufficientShares    = &AppError{Code: "INSUFFICIENT_SHARES", Message: "Insufficient shares for transfer", StatusCode: http.StatusBadRequest}
	ErrNotEnoughSellerShares = &AppError{Code: "NOT_ENOUGH_SELLER_SHARES", Message: "Seller no longer holds the listed shares", StatusCode: http.StatusConflict}
	ErrLimitTooLow           = &AppError{Code: "LIMIT_TOO_LOW", Message: "Requested total exceeds the split limit", StatusCode: http.StatusBadRequest}
	ErrNoSharesLeft          = &AppError{Code: "NO_SHARES_LEFT", Message: "No shares left on this listing", StatusCode: http.StatusConflict}
	ErrNoOffer               = &AppError{Code: "NO_OFFER", Message: "No open offer to accept", StatusCode: http.StatusBadRequest}
	ErrNoSeller              = &AppError{Code: "NO_SELLER", Message: "House has no owner to negotiate with", StatusCode: http.StatusBadRequest}
)

// Not found.
var (
	ErrHouseNotFound        = &AppError{Code: "HOUSE_NOT_FOUND", Message: "House not found", StatusCode: http.StatusNotFound}
	ErrListingNotFound      = &AppError{Code: "LISTING_NOT_FOUND", Message: "Listing not found", StatusCode: http.StatusNotFound}
	ErrUserNotFound         = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrConversationNotFound = &AppError{Code: "CONVERSATION_NOT_FOUND", Message: "Conversation not found", StatusCode: http.StatusNotFound}
	ErrProposalNotFound     = &AppError{Code: "PROPOSAL_NOT_FOUND", Message: "Split proposal not found", StatusCode: http.StatusNotFound}
	ErrRequestNotFound      = &AppError{Code: "REQUEST_NOT_FOUND", Message: "Limit request not found", StatusCode: http.StatusNotFound}
	ErrTransactionNotFound  = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
)

// Payment accounts and provider.
var (
	ErrBuyerNotOnboarded     = &AppError{Code: "BUYER_NOT_ONBOARDED", Message: "Buyer has no payment account", StatusCode: http.StatusBadRequest}
	ErrBuyerChargesDisabled  = &AppError{Code: "BUYER_CHARGES_DISABLED", Message: "Buyer payment account cannot be charged", StatusCode: http.StatusBadRequest}
	ErrSellerNotOnboarded    = &AppError{Code: "SELLER_NOT_ONBOARDED", Message: "Seller has no payment account", StatusCode: http.StatusBadRequest}
	ErrSellerChargesDisabled = &AppError{Code: "SELLER_CHARGES_DISABLED", Message: "Seller payment account cannot accept charges", StatusCode: http.StatusBadRequest}
	ErrSellerPayoutsDisabled = &AppError{Code: "SELLER_PAYOUTS_DISABLED", Message: "Seller payment account cannot receive payouts", StatusCode: http.StatusBadRequest}
	ErrProvider              = &AppError{Code: "PAYMENT_PROVIDER_ERROR", Message: "Payment provider request failed", StatusCode: http.StatusBadGateway}
	ErrProviderNotConfigured = &AppError{Code: "PAYMENT_PROVIDER_NOT_CONFIGURED", Message: "Payment provider is not configured", StatusCode: http.StatusServiceUnavailable}
	ErrInvalidSignature      = &AppError{Code: "INVALID_SIGNATURE", Message: "Webhook signature verification failed", StatusCode: http.StatusBadRequest}
)

var ErrInternal = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
