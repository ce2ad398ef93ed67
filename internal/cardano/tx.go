package cardano

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// TxBodyHash returns the blake2b-256 digest of the body of a serialized
// transaction, which is the transaction id the ledger signs over.
//
// A transaction is the array [body, witness_set, is_valid, auxiliary_data];
// pre-Alonzo encodings omit is_valid.
func TxBodyHash(tx []byte) ([]byte, error) {
	if len(tx) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidTransaction)
	}
	if majorType(tx) != majorArray {
		return nil, fmt.Errorf("%w: not an array", ErrInvalidTransaction)
	}

	var parts []cbor.RawMessage
	if err := decMode.Unmarshal(tx, &parts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if len(parts) != 3 && len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected 3 or 4 elements, got %d", ErrInvalidTransaction, len(parts))
	}

	body := parts[0]
	if majorType(body) != majorMap {
		return nil, fmt.Errorf("%w: body is not a map", ErrInvalidTransaction)
	}

	sum := blake2b.Sum256(body)
	return sum[:], nil
}
