package txpipeline

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/ed25519"

	"github.com/vadiminshakov/ledgerwallet/internal/ledgerxdr"
	"github.com/vadiminshakov/ledgerwallet/internal/strkey"
)

// Signer ed25519 key pair of the wallet account.
type Signer struct {
	public  ledgerxdr.Key
	private ed25519.PrivateKey
}

// NewSigner creates a signer from an S... encoded seed.
func NewSigner(seed string) (*Signer, error) {
	raw, err := strkey.Decode32(strkey.VersionByteSeed, seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode seed")
	}
	return NewSignerFromRawSeed(raw), nil
}

func NewSignerFromRawSeed(seed [32]byte) *Signer {
	private := ed25519.NewKeyFromSeed(seed[:])

	s := &Signer{private: private}
	copy(s.public[:], private.Public().(ed25519.PublicKey))
	return s
}

// PublicKey raw public key.
func (s *Signer) PublicKey() ledgerxdr.Key {
	return s.public
}

// AccountID G... encoded public key.
func (s *Signer) AccountID() string {
	return strkey.MustEncode(strkey.VersionByteAccountID, s.public[:])
}

// Sign signs a transaction hash.
func (s *Signer) Sign(hash [32]byte) ledgerxdr.DecoratedSignature {
	return ledgerxdr.DecoratedSignature{
		Hint:      ledgerxdr.SignatureHint(s.public),
		Signature: ed25519.Sign(s.private, hash[:]),
	}
}

// Verify checks a signature produced by Sign.
func (s *Signer) Verify(hash [32]byte, sig ledgerxdr.DecoratedSignature) bool {
	return ed25519.Verify(ed25519.PublicKey(s.public[:]), hash[:], sig.Signature)
}
