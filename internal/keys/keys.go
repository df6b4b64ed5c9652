// Package keys derives every key a Railgun wallet needs from one BIP-39
// mnemonic: the secp256k1 signer for public transactions, the BabyJubJub
// spending key, the ed25519 viewing key and the Poseidon-derived nullifying
// and master public keys.
package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/tyler-smith/go-bip39"
)

// Errors
var (
	ErrInvalidMnemonic   = errors.New("invalid mnemonic")
	ErrInvalidPrivateKey = errors.New("private key must be 32 bytes of hex")
)

const (
	hardened = hdkeychain.HardenedKeyStart

	// BIP-44 coin types.
	coinTypeEthereum = 60
	coinTypeRailgun  = 1984

	// Purpose fields of the Railgun derivation paths.
	purposeSpending = 44
	purposeViewing  = 420

	babyJubJubSeed = "babyjubjub seed"
)

// KeySet is every key derived for one wallet index.
type KeySet struct {
	Index uint32

	// Signer is the secp256k1 key that signs public transactions.
	Signer  *ecdsa.PrivateKey
	Address common.Address

	SpendingPrivate [32]byte
	SpendingPublic  [2]*big.Int

	ViewingPrivate [32]byte
	ViewingPublic  ed25519.PublicKey

	NullifyingKey   *big.Int
	MasterPublicKey *big.Int
}

// NewMnemonic returns a fresh 12-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// ValidMnemonic reports whether s is a checksummed BIP-39 mnemonic.
func ValidMnemonic(s string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(s))
}

// NormalizeMnemonic lowercases and collapses whitespace.
func NormalizeMnemonic(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ParsePrivateKey decodes a 64-hex-character key with optional 0x prefix.
func ParsePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidPrivateKey
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key, nil
}

// MnemonicFromPrivateKey uses a raw private key as BIP-39 entropy, giving a
// deterministic 24-word mnemonic for the Railgun side of an imported key.
func MnemonicFromPrivateKey(s string) (string, error) {
	key, err := ParsePrivateKey(s)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(crypto.FromECDSA(key))
}

// Derive derives the key set for a mnemonic at the given index.
func Derive(mnemonic string, index uint32) (*KeySet, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	signer, err := deriveSigner(seed, index)
	if err != nil {
		return nil, err
	}

	spending := deriveHardened(seed, []uint32{purposeSpending, coinTypeRailgun, 0, 0, index})
	viewing := deriveHardened(seed, []uint32{purposeViewing, coinTypeRailgun, 0, 0, index})

	ks := &KeySet{
		Index:           index,
		Signer:          signer,
		Address:         crypto.PubkeyToAddress(signer.PublicKey),
		SpendingPrivate: spending,
		ViewingPrivate:  viewing,
	}

	spendPriv := babyjub.PrivateKey(spending)
	pub := spendPriv.Public()
	ks.SpendingPublic = [2]*big.Int{pub.X, pub.Y}

	ks.ViewingPublic = ed25519.NewKeyFromSeed(viewing[:]).Public().(ed25519.PublicKey)

	viewingScalar := new(big.Int).SetBytes(viewing[:])
	ks.NullifyingKey, err = poseidon.Hash([]*big.Int{inField(viewingScalar)})
	if err != nil {
		return nil, fmt.Errorf("nullifying key: %w", err)
	}
	ks.MasterPublicKey, err = poseidon.Hash([]*big.Int{pub.X, pub.Y, ks.NullifyingKey})
	if err != nil {
		return nil, fmt.Errorf("master public key: %w", err)
	}
	return ks, nil
}

// DeriveWithSigner derives the Railgun keys from mnemonic but keeps signer
// as the public-transaction key. Used for wallets imported from a raw key.
func DeriveWithSigner(mnemonic string, index uint32, signer *ecdsa.PrivateKey) (*KeySet, error) {
	ks, err := Derive(mnemonic, index)
	if err != nil {
		return nil, err
	}
	ks.Signer = signer
	ks.Address = crypto.PubkeyToAddress(signer.PublicKey)
	return ks, nil
}

// SignerHex returns the signer private key as 0x-prefixed hex.
func (k *KeySet) SignerHex() string {
	return "0x" + hex.EncodeToString(crypto.FromECDSA(k.Signer))
}

// AddressData returns the 0zk address fields for this key set. A nil chain
// produces an address valid on all chains.
func (k *KeySet) AddressData(chain *Chain) AddressData {
	return AddressData{
		MasterPublicKey:  new(big.Int).Set(k.MasterPublicKey),
		ViewingPublicKey: append([]byte(nil), k.ViewingPublic...),
		Chain:            chain,
		Version:          AddressVersion,
	}
}

// RailgunAddress encodes the 0zk address for this key set.
func (k *KeySet) RailgunAddress(chain *Chain) (string, error) {
	return EncodeAddress(k.AddressData(chain))
}

// deriveSigner follows BIP-44 m/44'/60'/0'/0/index.
func deriveSigner(seed []byte, index uint32) (*ecdsa.PrivateKey, error) {
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, child := range []uint32{purposeSpending + hardened, coinTypeEthereum + hardened, hardened, 0, index} {
		key, err = key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", child, err)
		}
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}
	return priv.ToECDSA(), nil
}

// deriveHardened walks a fully hardened path using the HMAC-SHA512 chain
// keyed with "babyjubjub seed". Every element of path is hardened.
func deriveHardened(seed []byte, path []uint32) [32]byte {
	sum := hmacSHA512([]byte(babyJubJubSeed), seed)
	chainKey, chainCode := sum[:32], sum[32:]

	for _, index := range path {
		data := make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, chainKey...)
		data = binary.BigEndian.AppendUint32(data, index+hardened)
		sum = hmacSHA512(chainCode, data)
		chainKey, chainCode = sum[:32], sum[32:]
	}

	var out [32]byte
	copy(out[:], chainKey)
	return out
}

func hmacSHA512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func inField(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, constants.Q)
}
