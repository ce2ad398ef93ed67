// Package cardano decodes the parts of Cardano ledger CBOR that merchantpay
// touches: transaction witness sets and transaction bodies.
package cardano

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	// VKeySize is the length of an Ed25519 verification key.
	VKeySize = 32
	// SignatureSize is the length of an Ed25519 signature.
	SignatureSize = 64

	// setTag marks a CBOR array as a set (Conway era encoding).
	setTag = 258

	// witness set map keys
	keyVKeyWitnesses     = 0
	keyNativeScripts     = 1
	keyBootstrapWitness  = 2
	keyPlutusV1Scripts   = 3
	keyPlutusData        = 4
	keyRedeemers         = 5
	keyPlutusV2Scripts   = 6
	keyPlutusV3Scripts   = 7
	maxKnownWitnessField = keyPlutusV3Scripts
)

var (
	// ErrInvalidWitnessSet is wrapped by every witness set decode failure.
	ErrInvalidWitnessSet = errors.New("invalid witness set")
	// ErrInvalidTransaction is wrapped by every transaction decode failure.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// CBOR major types checked before decoding.
const (
	majorArray = 4
	majorMap   = 5
	majorTag   = 6
)

var (
	// decMode reads structures whose values may carry tags (plutus data,
	// tag-258 sets). strictMode reads leaves that must be tag free.
	decMode    cbor.DecMode
	strictMode cbor.DecMode
	encMode    cbor.EncMode
)

func init() {
	opts := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthAllowed,
		TagsMd:          cbor.TagsAllowed,
		MaxNestedLevels: 64,
	}
	var err error
	decMode, err = opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cardano: cbor decode mode: %v", err))
	}
	opts.TagsMd = cbor.TagsForbidden
	strictMode, err = opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cardano: cbor strict decode mode: %v", err))
	}
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cardano: cbor encode mode: %v", err))
	}
}

// VKeyWitness is a verification key and the signature it produced,
// encoded as the two element array [vkey, signature].
type VKeyWitness struct {
	_         struct{} `cbor:",toarray"`
	VKey      []byte
	Signature []byte
}

// NewVKeyWitness copies vkey and signature into a witness.
func NewVKeyWitness(vkey, signature []byte) VKeyWitness {
	return VKeyWitness{
		VKey:      append([]byte(nil), vkey...),
		Signature: append([]byte(nil), signature...),
	}
}

// VKeyHex returns the verification key as lowercase hex.
func (w VKeyWitness) VKeyHex() string { return hex.EncodeToString(w.VKey) }

// SignatureHex returns the signature as lowercase hex.
func (w VKeyWitness) SignatureHex() string { return hex.EncodeToString(w.Signature) }

func (w VKeyWitness) validate() error {
	if len(w.VKey) != VKeySize {
		return fmt.Errorf("vkey is %d bytes, want %d", len(w.VKey), VKeySize)
	}
	if len(w.Signature) != SignatureSize {
		return fmt.Errorf("signature is %d bytes, want %d", len(w.Signature), SignatureSize)
	}
	return nil
}

// WitnessSet is a decoded transaction witness set. Only the vkey witnesses are
// interpreted; the other fields are kept as raw CBOR.
type WitnessSet struct {
	vkeys     []VKeyWitness
	hasVKeys  bool
	taggedSet bool
	other     map[uint64]cbor.RawMessage
}

func newWitnessSet(witnesses ...VKeyWitness) *WitnessSet {
	ws := &WitnessSet{other: map[uint64]cbor.RawMessage{}}
	if len(witnesses) > 0 {
		ws.hasVKeys = true
		ws.vkeys = append(ws.vkeys, witnesses...)
	}
	return ws
}

// DecodeWitnessSet decodes the CBOR map of a transaction witness set.
// Trailing bytes, duplicate or tagged keys, unknown keys, malformed vkey
// witnesses and fields that are not arrays or sets are errors.
func DecodeWitnessSet(data []byte) (*WitnessSet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidWitnessSet)
	}
	if majorType(data) != majorMap {
		return nil, fmt.Errorf("%w: not a map", ErrInvalidWitnessSet)
	}

	// interface{} keys keep a tagged key from being stripped to its content.
	var fields map[interface{}]cbor.RawMessage
	if err := decMode.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWitnessSet, err)
	}

	ws := &WitnessSet{other: make(map[uint64]cbor.RawMessage, len(fields))}
	for k, raw := range fields {
		key, ok := k.(uint64)
		if !ok {
			return nil, fmt.Errorf("%w: field key %v is not an unsigned integer", ErrInvalidWitnessSet, k)
		}
		if key > maxKnownWitnessField {
			return nil, fmt.Errorf("%w: unknown field %d", ErrInvalidWitnessSet, key)
		}
		if key != keyVKeyWitnesses {
			if err := checkFieldShape(key, raw); err != nil {
				return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidWitnessSet, key, err)
			}
			ws.other[key] = raw
			continue
		}

		witnesses, tagged, err := decodeVKeyWitnesses(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: vkey witnesses: %v", ErrInvalidWitnessSet, err)
		}
		ws.hasVKeys = true
		ws.taggedSet = tagged
		ws.vkeys = witnesses
	}

	return ws, nil
}

func majorType(raw []byte) byte {
	if len(raw) == 0 {
		return 0xff
	}
	return raw[0] >> 5
}

// untagSet strips one tag 258 from raw. Any other tag is an error.
func untagSet(raw cbor.RawMessage) (cbor.RawMessage, bool, error) {
	if majorType(raw) != majorTag {
		return raw, false, nil
	}
	var tag cbor.RawTag
	if err := decMode.Unmarshal(raw, &tag); err != nil {
		return nil, false, err
	}
	if tag.Number != setTag {
		return nil, false, fmt.Errorf("unexpected tag %d", tag.Number)
	}
	return tag.Content, true, nil
}

// checkFieldShape requires an array or a tag-258 set; redeemers may also be
// a map.
func checkFieldShape(key uint64, raw cbor.RawMessage) error {
	if key == keyRedeemers && majorType(raw) == majorMap {
		return nil
	}
	content, _, err := untagSet(raw)
	if err != nil {
		return err
	}
	if majorType(content) != majorArray {
		return fmt.Errorf("not an array")
	}
	return nil
}

func decodeVKeyWitnesses(raw cbor.RawMessage) ([]VKeyWitness, bool, error) {
	content, tagged, err := untagSet(raw)
	if err != nil {
		return nil, false, err
	}
	if majorType(content) != majorArray {
		return nil, false, fmt.Errorf("not an array")
	}

	var witnesses []VKeyWitness
	if err := strictMode.Unmarshal(content, &witnesses); err != nil {
		return nil, false, err
	}
	for i, w := range witnesses {
		if err := w.validate(); err != nil {
			return nil, false, fmt.Errorf("witness %d: %v", i, err)
		}
	}
	return witnesses, tagged, nil
}

// VKeyWitnesses returns the vkey witnesses in stored order. The result is
// empty, not nil-vs-error, when the set carries none.
func (ws *WitnessSet) VKeyWitnesses() []VKeyWitness {
	out := make([]VKeyWitness, len(ws.vkeys))
	copy(out, ws.vkeys)
	return out
}

// Bytes encodes the set with core deterministic CBOR. A set decoded from a
// tag-258 encoding is re-encoded with the tag.
func (ws *WitnessSet) Bytes() ([]byte, error) {
	fields := make(map[uint64]cbor.RawMessage, len(ws.other)+1)
	for k, v := range ws.other {
		fields[k] = v
	}
	if ws.hasVKeys {
		vkeys := ws.vkeys
		if vkeys == nil {
			vkeys = []VKeyWitness{}
		}
		var content interface{} = vkeys
		if ws.taggedSet {
			content = cbor.Tag{Number: setTag, Content: vkeys}
		}
		raw, err := encMode.Marshal(content)
		if err != nil {
			return nil, err
		}
		fields[keyVKeyWitnesses] = raw
	}
	return encMode.Marshal(fields)
}

// EncodeWitnessSet encodes a witness set holding only vkey witnesses.
func EncodeWitnessSet(witnesses ...VKeyWitness) ([]byte, error) {
	return newWitnessSet(witnesses...).Bytes()
}
