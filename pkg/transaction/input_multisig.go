package transaction

import (
	"sort"

	"github.com/suffix-labs/bchtx/pkg/crypto"
	"github.com/suffix-labs/bchtx/pkg/script"
)

const (
	multiSigOpcodesSize   = 1  // OP_0
	multiSigSignatureSize = 73 // push (1) + DER (<=72)
)

// signatureSlots is the signature bookkeeping shared by the multisig family:
// one slot per public key, keys sorted by their hex encoding.
type signatureSlots struct {
	publicKeys []*crypto.PublicKey
	keyIndex   map[string]int
	threshold  int
	signatures []*Signature
}

func newSignatureSlots(pubkeys []*crypto.PublicKey, threshold int) *signatureSlots {
	keys := append([]*crypto.PublicKey(nil), pubkeys...)
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	s := &signatureSlots{
		publicKeys: keys,
		keyIndex:   make(map[string]int, len(keys)),
		threshold:  threshold,
		signatures: make([]*Signature, len(keys)),
	}
	for i, k := range keys {
		s.keyIndex[k.String()] = i
	}
	return s
}

func (s *signatureSlots) keyBytes() [][]byte {
	out := make([][]byte, len(s.publicKeys))
	for i, k := range s.publicKeys {
		out[i] = k.Bytes()
	}
	return out
}

// PublicKeys returns the keys in slot order
func (s *signatureSlots) PublicKeys() []*crypto.PublicKey {
	return append([]*crypto.PublicKey(nil), s.publicKeys...)
}

// Signatures returns one entry per key slot, nil where no signature exists
func (s *signatureSlots) Signatures() []*Signature {
	return append([]*Signature(nil), s.signatures...)
}

func (s *signatureSlots) Threshold() int { return s.threshold }

func (s *signatureSlots) CountSignatures() int {
	n := 0
	for _, sig := range s.signatures {
		if sig != nil {
			n++
		}
	}
	return n
}

func (s *signatureSlots) CountMissingSignatures() int {
	return s.threshold - s.CountSignatures()
}

func (s *signatureSlots) PublicKeysWithoutSignature() []*crypto.PublicKey {
	var out []*crypto.PublicKey
	for i, k := range s.publicKeys {
		if s.signatures[i] == nil {
			out = append(out, k)
		}
	}
	return out
}

func (s *signatureSlots) IsFullySigned() (bool, error) {
	return s.CountSignatures() == s.threshold, nil
}

// txSignatures returns the filled slots in key order, in unlocking script form
func (s *signatureSlots) txSignatures() [][]byte {
	var out [][]byte
	for _, sig := range s.signatures {
		if sig != nil {
			out = append(out, sig.TxFormat())
		}
	}
	return out
}

// sign returns one signature per slot whose key matches key
func (s *signatureSlots) sign(base *BaseInput, tx *Transaction, key *crypto.PrivateKey, index int, sigtype SigHashType, subscript []byte) ([]*Signature, error) {
	if err := base.requireOutput(index); err != nil {
		return nil, err
	}
	pub := key.PublicKey()
	var out []*Signature
	for _, k := range s.publicKeys {
		if k.String() != pub.String() {
			continue
		}
		sig, err := base.signWith(tx, key, index, orDefault(sigtype), subscript)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}

// add stores sig in its key slot after verifying it against subscript
func (s *signatureSlots) add(base *BaseInput, tx *Transaction, sig *Signature, subscript []byte) error {
	if s.CountSignatures() >= s.threshold {
		return inputError(sig.InputIndex, ErrAllSignaturesAdded, "All needed signatures have already been added")
	}
	slot, ok := s.keyIndex[sig.PublicKey.String()]
	if !ok {
		return inputError(sig.InputIndex, ErrNoMatchingPublicKey, "signature has no matching public key")
	}
	valid, err := base.verifyWith(tx, sig, subscript)
	if err != nil {
		return err
	}
	if !valid {
		return inputError(sig.InputIndex, ErrInvalidSignature, "signature invalid")
	}
	if s.signatures[slot] != nil {
		return inputError(sig.InputIndex, ErrDuplicateSignature, "public key %s already signed", sig.PublicKey)
	}
	s.signatures[slot] = sig
	return nil
}

// restore replaces every slot, used when rebuilding from the object form
func (s *signatureSlots) restore(sigs []*Signature) error {
	if len(sigs) != len(s.publicKeys) {
		return newError(ErrInconsistentObject, "expected %d signature slots, got %d", len(s.publicKeys), len(sigs))
	}
	for i, sig := range sigs {
		if sig != nil && s.keyIndex[sig.PublicKey.String()] != i {
			return newError(ErrInconsistentObject, "signature in slot %d belongs to another key", i)
		}
	}
	copy(s.signatures, sigs)
	if s.CountSignatures() > s.threshold {
		return newError(ErrInconsistentObject, "%d signatures for a threshold of %d", s.CountSignatures(), s.threshold)
	}
	return nil
}

// filled returns the signatures held, in key order
func (s *signatureSlots) filled() []*Signature {
	var out []*Signature
	for _, sig := range s.signatures {
		if sig != nil {
			out = append(out, sig)
		}
	}
	return out
}

func (s *signatureSlots) clear() {
	s.signatures = make([]*Signature, len(s.publicKeys))
}

func (s *signatureSlots) clone() *signatureSlots {
	c := *s
	c.signatures = append([]*Signature(nil), s.signatures...)
	return &c
}

func (s *signatureSlots) fillObject(obj *InputObject) {
	obj.Threshold = s.threshold
	obj.PublicKeys = make([]string, len(s.publicKeys))
	for i, k := range s.publicKeys {
		obj.PublicKeys[i] = k.String()
	}
	obj.Signatures = make([]*SignatureObject, len(s.signatures))
	for i, sig := range s.signatures {
		if sig != nil {
			obj.Signatures[i] = sig.ToObject()
		}
	}
}

// MultiSigInput spends a bare m-of-n multisig output.
type MultiSigInput struct {
	*BaseInput
	*signatureSlots
}

// NewMultiSigInput creates a bare multisig input. The keys, sorted, together
// with threshold must rebuild the spent output's locking script.
func NewMultiSigInput(p InputParams, pubkeys []*crypto.PublicKey, threshold int) (*MultiSigInput, error) {
	base, err := NewInput(p)
	if err != nil {
		return nil, err
	}
	if base.output == nil {
		return nil, inputError(-1, ErrMissingPreviousOutput, "multisig input requires the spent output")
	}
	slots := newSignatureSlots(pubkeys, threshold)
	expected, err := script.BuildMultisigOut(slots.keyBytes(), threshold)
	if err != nil || !script.Equal(expected, base.output.script) {
		return nil, inputError(-1, ErrInvalidPublicKeys, "provided public keys don't match to the provided output script")
	}
	return &MultiSigInput{BaseInput: base, signatureSlots: slots}, nil
}

func (in *MultiSigInput) Kind() Kind { return KindMultiSig }

func (in *MultiSigInput) GetSignatures(tx *Transaction, key *crypto.PrivateKey, index int, sigtype SigHashType, _ []byte) ([]*Signature, error) {
	return in.sign(in.BaseInput, tx, key, index, sigtype, in.lockingScript())
}

func (in *MultiSigInput) AddSignature(tx *Transaction, sig *Signature) error {
	if err := in.add(in.BaseInput, tx, sig, in.lockingScript()); err != nil {
		return err
	}
	in.updateScript()
	return nil
}

func (in *MultiSigInput) updateScript() {
	in.script = script.BuildMultisigIn(in.txSignatures())
}

func (in *MultiSigInput) ClearSignatures() error {
	in.clear()
	in.updateScript()
	return nil
}

func (in *MultiSigInput) IsFullySigned() (bool, error) {
	return in.signatureSlots.IsFullySigned()
}

func (in *MultiSigInput) IsValidSignature(tx *Transaction, sig *Signature) (bool, error) {
	return in.verifyWith(tx, sig, in.lockingScript())
}

func (in *MultiSigInput) EstimateSize() int {
	return multiSigOpcodesSize + in.threshold*multiSigSignatureSize
}

func (in *MultiSigInput) Clone() Input {
	return &MultiSigInput{BaseInput: in.cloneBase(), signatureSlots: in.signatureSlots.clone()}
}

func (in *MultiSigInput) ToObject() *InputObject {
	obj := in.BaseInput.ToObject()
	in.fillObject(obj)
	return obj
}

// NormalizeSignatures matches raw unlocking script signatures to public
// keys. The result has one entry per key, nil where no signature verifies
// against it. Each raw signature is consumed by at most one key.
func NormalizeSignatures(tx *Transaction, in *BaseInput, index int, rawSigs [][]byte, pubkeys []*crypto.PublicKey, subscript []byte) []*Signature {
	remaining := append([][]byte(nil), rawSigs...)
	out := make([]*Signature, len(pubkeys))
	if in.output == nil {
		return out
	}
	for i, pub := range pubkeys {
		for j, raw := range remaining {
			der, sigtype, err := ParseTxSignature(raw)
			if err != nil {
				continue
			}
			sig := &Signature{
				PublicKey:   pub,
				PrevTxID:    in.PrevTxID,
				OutputIndex: in.OutputIndex,
				InputIndex:  index,
				Signature:   der,
				SigType:     sigtype,
			}
			ok, err := in.verifyWith(tx, sig, subscript)
			if err != nil || !ok {
				continue
			}
			out[i] = sig
			remaining = append(remaining[:j], remaining[j+1:]...)
			break
		}
	}
	return out
}
