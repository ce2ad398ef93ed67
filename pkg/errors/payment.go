// pkg/errors/payment.go
package errors

import "strings"

// Payment error codes
const (
	// PaymentErrInvalidRequest indicates one or more request fields failed validation
	PaymentErrInvalidRequest = "PAYMENT_INVALID_REQUEST"
	// PaymentErrHashMismatch indicates the supplied hash does not match the transaction body
	PaymentErrHashMismatch = "PAYMENT_HASH_MISMATCH"
	// PaymentErrMerchantKeyMissing indicates the merchant signing key is not configured
	PaymentErrMerchantKeyMissing = "PAYMENT_MERCHANT_KEY_MISSING"
	// PaymentErrMerchantKeyInvalid indicates the merchant signing key cannot be used
	PaymentErrMerchantKeyInvalid = "PAYMENT_MERCHANT_KEY_INVALID"
	// PaymentErrInvalidHex indicates a hex field could not be decoded
	PaymentErrInvalidHex = "PAYMENT_INVALID_HEX"
	// PaymentErrInvalidWitnessSet indicates the wallet witness set is not valid CBOR
	PaymentErrInvalidWitnessSet = "PAYMENT_INVALID_WITNESS_SET"
	// PaymentErrInvalidTransaction indicates the transaction is not valid CBOR
	PaymentErrInvalidTransaction = "PAYMENT_INVALID_TRANSACTION"
	// PaymentErrSubmitRejected indicates the submission service rejected the transaction
	PaymentErrSubmitRejected = "PAYMENT_SUBMIT_REJECTED"
	// PaymentErrSubmitUnavailable indicates the submission service could not be reached
	PaymentErrSubmitUnavailable = "PAYMENT_SUBMIT_UNAVAILABLE"
	// PaymentErrDuplicate indicates the transaction was already submitted
	PaymentErrDuplicate = "PAYMENT_DUPLICATE"
)

// Payment domain name
const PaymentDomain = "payment"

// Payment operations
const (
	OpValidateRequest   = "ValidateRequest"
	OpSignTransaction   = "SignTransaction"
	OpDecodeWitnessSet  = "DecodeWitnessSet"
	OpDecodeTransaction = "DecodeTransaction"
	OpSubmitTransaction = "SubmitTransaction"
	OpReserveTxHash     = "ReserveTxHash"
)

// FieldViolation describes one rejected request field.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationFailed reports every violated field in one error.
func ValidationFailed(violations []FieldViolation) error {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return &Error{
		Kind:      KindValidation,
		Domain:    PaymentDomain,
		Operation: OpValidateRequest,
		Code:      PaymentErrInvalidRequest,
		Message:   strings.Join(parts, "; "),
		Fields:    map[string]interface{}{"violations": violations},
	}
}

// HashMismatch reports a tx_hash_hex that is not the hash of the transaction body.
func HashMismatch(supplied, computed string) error {
	return &Error{
		Kind:      KindValidation,
		Domain:    PaymentDomain,
		Operation: OpDecodeTransaction,
		Code:      PaymentErrHashMismatch,
		Message:   "Transaction hash does not match transaction body",
		Fields:    map[string]interface{}{"supplied": supplied, "computed": computed},
	}
}

// MerchantKeyMissing reports an unset merchant signing key. The setting name
// is only carried in Fields.
func MerchantKeyMissing(setting string) error {
	return &Error{
		Kind:      KindConfig,
		Domain:    PaymentDomain,
		Operation: OpSignTransaction,
		Code:      PaymentErrMerchantKeyMissing,
		Message:   "Merchant signing key is not configured",
		Fields:    map[string]interface{}{"setting": setting},
	}
}

// MerchantKeyInvalid reports a configured merchant key that cannot be used.
func MerchantKeyInvalid(err error) error {
	return &Error{
		Kind:      KindConfig,
		Domain:    PaymentDomain,
		Operation: OpSignTransaction,
		Code:      PaymentErrMerchantKeyInvalid,
		Message:   "Merchant signing key is invalid",
		Original:  err,
	}
}

// DecodeFailed reports input that does not decode. message is returned to callers.
func DecodeFailed(operation, code, message string, err error) error {
	return &Error{
		Kind:      KindDecode,
		Domain:    PaymentDomain,
		Operation: operation,
		Code:      code,
		Message:   message,
		Original:  err,
	}
}

// SigningFailed reports a transaction hash the merchant key cannot sign.
// message is returned to callers.
func SigningFailed(code, message string, err error) error {
	return &Error{
		Kind:      KindSigning,
		Domain:    PaymentDomain,
		Operation: OpSignTransaction,
		Code:      code,
		Message:   message,
		Original:  err,
	}
}

// SubmissionFailed reports a downstream rejection or outage. message should be
// the downstream message when one is available.
func SubmissionFailed(code, message string, err error) error {
	if message == "" {
		message = "Payment submission failed"
	}
	return &Error{
		Kind:      KindSubmission,
		Domain:    PaymentDomain,
		Operation: OpSubmitTransaction,
		Code:      code,
		Message:   message,
		Original:  err,
	}
}

// DuplicateSubmission reports a transaction hash that was already submitted.
func DuplicateSubmission(txHash string) error {
	return &Error{
		Kind:      KindDuplicate,
		Domain:    PaymentDomain,
		Operation: OpReserveTxHash,
		Code:      PaymentErrDuplicate,
		Message:   "Transaction has already been submitted",
		Fields:    map[string]interface{}{"tx_hash": txHash},
	}
}
