// Package payment co-signs wallet-built transactions and submits them.
package payment

import (
	"github.com/cmatc13/merchantpay/pkg/errors"
)

// MinTxHashHexLen is the length of a 32-byte hash in hex.
const MinTxHashHexLen = 64

// SubmitRequest is the body of a payment submission.
type SubmitRequest struct {
	TxCborHex         string `json:"tx_cbor_hex"`
	WitnessSetCborHex string `json:"witness_set_cbor_hex"`
	TxHashHex         string `json:"tx_hash_hex"`
}

// Validate checks that every field is present and the hash is long enough.
// Hex well-formedness is left to the decoders.
func (r SubmitRequest) Validate() error {
	var violations []errors.FieldViolation
	if r.TxCborHex == "" {
		violations = append(violations, errors.FieldViolation{Field: "tx_cbor_hex", Reason: "Transaction CBOR is required"})
	}
	if r.WitnessSetCborHex == "" {
		violations = append(violations, errors.FieldViolation{Field: "witness_set_cbor_hex", Reason: "Witness set CBOR is required"})
	}
	if len(r.TxHashHex) < MinTxHashHexLen {
		violations = append(violations, errors.FieldViolation{Field: "tx_hash_hex", Reason: "Transaction hash is required"})
	}
	if len(violations) > 0 {
		return errors.ValidationFailed(violations)
	}
	return nil
}
