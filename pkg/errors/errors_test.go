package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", MerchantKeyMissing("CARDANO_MERCHANT_SKEY"))
	assert.Equal(t, KindConfig, KindOf(err))
	assert.Equal(t, PaymentErrMerchantKeyMissing, CodeOf(err))
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
}

func TestPublicMessageHidesOriginal(t *testing.T) {
	err := SubmissionFailed(PaymentErrSubmitUnavailable, "", fmt.Errorf("dial tcp 10.0.0.1:443: refused"))
	assert.Equal(t, "Payment submission failed", PublicMessage(err, "fallback"))
	assert.Contains(t, err.Error(), "dial tcp")
	assert.Equal(t, "fallback", PublicMessage(fmt.Errorf("boom"), "fallback"))
}

func TestValidationFailedListsEveryField(t *testing.T) {
	err := ValidationFailed([]FieldViolation{
		{Field: "tx_cbor_hex", Reason: "Transaction CBOR is required"},
		{Field: "tx_hash_hex", Reason: "Transaction hash is required"},
	})
	var domainErr *Error
	require.True(t, As(err, &domainErr))
	assert.Equal(t, KindValidation, domainErr.Kind)
	assert.Equal(t, "tx_cbor_hex: Transaction CBOR is required; tx_hash_hex: Transaction hash is required", domainErr.Message)
	violations, ok := domainErr.Fields["violations"].([]FieldViolation)
	require.True(t, ok)
	assert.Len(t, violations, 2)
}

func TestWrapWithOperationKeepsKind(t *testing.T) {
	base := DuplicateSubmission("abc")
	wrapped := WrapWithOperation(base, OpParseRequestBody)
	var domainErr *Error
	require.True(t, As(wrapped, &domainErr))
	assert.Equal(t, KindDuplicate, domainErr.Kind)
	assert.Equal(t, OpParseRequestBody, domainErr.Operation)
	assert.Equal(t, "abc", domainErr.Fields["tx_hash"])

	// the original is not mutated
	var orig *Error
	require.True(t, As(base, &orig))
	assert.Equal(t, OpReserveTxHash, orig.Operation)

	assert.Nil(t, WrapWithOperation(nil, "x"))
	plain := WrapWithOperation(fmt.Errorf("x"), OpHandleRequest)
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Equal(t, "[HandleRequest] x", plain.Error())
}

func TestSigningFailed(t *testing.T) {
	err := SigningFailed(PaymentErrInvalidHex, "Transaction hash is not valid hex", fmt.Errorf("encoding/hex: invalid byte"))
	assert.Equal(t, KindSigning, KindOf(err))
	assert.Equal(t, "Transaction hash is not valid hex", PublicMessage(err, "fallback"))
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromError(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation: http.StatusBadRequest,
		KindDecode:     http.StatusBadRequest,
		KindConfig:     http.StatusInternalServerError,
		KindSigning:    http.StatusBadRequest,
		KindSubmission: http.StatusBadGateway,
		KindDuplicate:  http.StatusConflict,
		KindNotFound:   http.StatusNotFound,
		KindStorage:    http.StatusServiceUnavailable,
		Kind("other"):  http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatusForKind(kind), "kind %s", kind)
	}

	assert.Equal(t, http.StatusUnsupportedMediaType, HTTPStatusFromError(NewAPIError(APIErrUnsupportedMedia, "json only", nil)))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromError(NewStorageError(StorageErrNotFound, "missing", nil)))
	assert.True(t, IsStorageError(NewStorageError(StorageErrRead, "read", nil), StorageErrRead))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromError(NewAPIError(APIErrInternalServer, "boom", nil)))
}
