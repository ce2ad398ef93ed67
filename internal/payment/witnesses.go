package payment

import (
	"encoding/hex"
	"strings"

	"github.com/cmatc13/merchantpay/internal/cardano"
	"github.com/cmatc13/merchantpay/internal/trp"
	"github.com/cmatc13/merchantpay/pkg/errors"
)

// ExtractWalletWitnesses decodes a hex witness set and returns its vkey
// witnesses in stored order. A set without vkey witnesses yields an empty
// slice.
func ExtractWalletWitnesses(witnessSetHex string) ([]trp.Witness, error) {
	raw, err := hex.DecodeString(witnessSetHex)
	if err != nil {
		return nil, errors.DecodeFailed(errors.OpDecodeWitnessSet, errors.PaymentErrInvalidHex,
			"Witness set CBOR is not valid hex", err)
	}

	ws, err := cardano.DecodeWitnessSet(raw)
	if err != nil {
		return nil, errors.DecodeFailed(errors.OpDecodeWitnessSet, errors.PaymentErrInvalidWitnessSet,
			"Failed to decode witness set", err)
	}

	vkeys := ws.VKeyWitnesses()
	out := make([]trp.Witness, 0, len(vkeys))
	for _, w := range vkeys {
		out = append(out, trp.VKeyWitness(w.VKeyHex(), w.SignatureHex()))
	}
	return out, nil
}

// verifyTxHash checks that txHashHex is the hash of the body of txCborHex.
func verifyTxHash(txCborHex, txHashHex string) error {
	raw, err := hex.DecodeString(txCborHex)
	if err != nil {
		return errors.DecodeFailed(errors.OpDecodeTransaction, errors.PaymentErrInvalidHex,
			"Transaction CBOR is not valid hex", err)
	}
	sum, err := cardano.TxBodyHash(raw)
	if err != nil {
		return errors.DecodeFailed(errors.OpDecodeTransaction, errors.PaymentErrInvalidTransaction,
			"Failed to decode transaction", err)
	}
	computed := hex.EncodeToString(sum)
	if !strings.EqualFold(computed, txHashHex) {
		return errors.HashMismatch(txHashHex, computed)
	}
	return nil
}
