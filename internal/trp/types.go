// Package trp is a client for the transaction resolve protocol submit call.
package trp

import "encoding/json"

// EncodingHex is the only content encoding merchantpay sends.
const EncodingHex = "hex"

// WitnessTypeVKey tags a verification key witness.
const WitnessTypeVKey = "vkey"

// HexContent is a byte string carried as text with its encoding.
type HexContent struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Hex wraps s as hex content.
func Hex(s string) HexContent {
	return HexContent{Content: s, Encoding: EncodingHex}
}

// TxEnvelope carries the serialized transaction.
type TxEnvelope struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Witness is one signature attached at submit time.
type Witness struct {
	Type      string     `json:"type"`
	Key       HexContent `json:"key"`
	Signature HexContent `json:"signature"`
}

// VKeyWitness builds a vkey witness from hex key and signature.
func VKeyWitness(keyHex, signatureHex string) Witness {
	return Witness{
		Type:      WitnessTypeVKey,
		Key:       Hex(keyHex),
		Signature: Hex(signatureHex),
	}
}

// SubmitParams is the params object of trp.submit.
type SubmitParams struct {
	Tx        TxEnvelope `json:"tx"`
	Witnesses []Witness  `json:"witnesses"`
}

// SubmitResponse is the result object of trp.submit.
type SubmitResponse struct {
	Hash string `json:"hash"`
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      string      `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is a JSON-RPC error object returned by the endpoint.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}
