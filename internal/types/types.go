// Package types provides common type definitions for the Trivia Pay organizer.
package types

// Network represents the Algorand network the organizer talks to
type Network string

const (
	// NetworkTestnet represents the public Algorand testnet
	NetworkTestnet Network = "testnet"
	// NetworkMainnet represents the public Algorand mainnet
	NetworkMainnet Network = "mainnet"
	// NetworkLocalnet represents a local sandbox network
	NetworkLocalnet Network = "localnet"
)

// IsValid reports whether the network is one the organizer knows about
func (n Network) IsValid() bool {
	switch n {
	case NetworkTestnet, NetworkMainnet, NetworkLocalnet:
		return true
	}
	return false
}

// TransactionType is the display category of a ledger transaction
type TransactionType string

const (
	// TxTypePayment represents a native-currency payment (indexer type "pay")
	TxTypePayment TransactionType = "Payment"
	// TxTypeAppCall represents an application call (indexer type "appl")
	TxTypeAppCall TransactionType = "App Call"
	// TxTypeAssetTransfer represents an asset transfer (indexer type "axfer")
	TxTypeAssetTransfer TransactionType = "Asset Transfer"
	// TxTypeUnknown represents any other transaction type
	TxTypeUnknown TransactionType = "Unknown"
)

// TransactionTypeFromLedger maps an indexer transaction type code to its display category
func TransactionTypeFromLedger(code string) TransactionType {
	switch code {
	case "pay":
		return TxTypePayment
	case "appl":
		return TxTypeAppCall
	case "axfer":
		return TxTypeAssetTransfer
	default:
		return TxTypeUnknown
	}
}

// TransactionStatus represents transaction confirmation status
type TransactionStatus string

const (
	// StatusSuccess represents a confirmed transaction
	StatusSuccess TransactionStatus = "success"
	// StatusPending represents a submitted but unconfirmed transaction
	StatusPending TransactionStatus = "pending"
	// StatusFailed represents a rejected transaction
	StatusFailed TransactionStatus = "failed"
)

// PayeeStatus is the settlement state of one bill participant
type PayeeStatus string

const (
	// PayeeNotified means the payee was told about their share but has not paid
	PayeeNotified PayeeStatus = "notified"
	// PayeePaid means the payee settled their share; terminal
	PayeePaid PayeeStatus = "paid"
)

// IsValid reports whether the status is a known payee status
func (s PayeeStatus) IsValid() bool {
	return s == PayeeNotified || s == PayeePaid
}

// NotificationType identifies the kind of inbound notification
type NotificationType string

const (
	// NotificationBillRequest is a payment request for a bill share
	NotificationBillRequest NotificationType = "bill_request"
)

// NotifyOutcome summarizes the result of a bill's notification batch
type NotifyOutcome string

const (
	// NotifySent means every payee's notification was confirmed
	NotifySent NotifyOutcome = "sent"
	// NotifyPartial means some submissions failed and some succeeded
	NotifyPartial NotifyOutcome = "partial"
	// NotifyFailed means every submission failed
	NotifyFailed NotifyOutcome = "failed"
	// NotifySkipped means no wallet session or the user cancelled signing
	NotifySkipped NotifyOutcome = "skipped"
	// NotifyError means the batch could not be built or signed
	NotifyError NotifyOutcome = "error"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError builds a ServiceError with optional details
func NewServiceError(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{Code: code, Message: message, Details: details}
}
