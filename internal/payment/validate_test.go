package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/merchantpay/pkg/errors"
)

func TestValidate(t *testing.T) {
	validHash := strings.Repeat("a", 64)

	tests := []struct {
		name       string
		req        SubmitRequest
		wantFields []string
	}{
		{
			name: "valid",
			req:  SubmitRequest{TxCborHex: "84", WitnessSetCborHex: "a0", TxHashHex: validHash},
		},
		{
			name: "longer hash is accepted",
			req:  SubmitRequest{TxCborHex: "84", WitnessSetCborHex: "a0", TxHashHex: validHash + "00"},
		},
		{
			name:       "missing tx",
			req:        SubmitRequest{WitnessSetCborHex: "a0", TxHashHex: validHash},
			wantFields: []string{"tx_cbor_hex"},
		},
		{
			name:       "short hash",
			req:        SubmitRequest{TxCborHex: "84", WitnessSetCborHex: "a0", TxHashHex: validHash[:63]},
			wantFields: []string{"tx_hash_hex"},
		},
		{
			name:       "everything missing",
			req:        SubmitRequest{},
			wantFields: []string{"tx_cbor_hex", "witness_set_cbor_hex", "tx_hash_hex"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.KindValidation, errors.KindOf(err))

			var domainErr *errors.Error
			require.True(t, errors.As(err, &domainErr))
			violations := domainErr.Fields["violations"].([]errors.FieldViolation)

			var fields []string
			for _, v := range violations {
				fields = append(fields, v.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestValidateMessages(t *testing.T) {
	err := SubmitRequest{}.Validate()
	msg := errors.PublicMessage(err, "")
	assert.Contains(t, msg, "Transaction CBOR is required")
	assert.Contains(t, msg, "Witness set CBOR is required")
	assert.Contains(t, msg, "Transaction hash is required")
}
