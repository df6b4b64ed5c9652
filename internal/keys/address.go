package keys

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// 0zk address constants.
const (
	AddressPrefix      = "0zk"
	AddressVersion     = 1
	AddressLengthLimit = 127

	// ChainTypeEVM is the only chain type Railgun deploys to today.
	ChainTypeEVM = 0

	payloadLength = 1 + 32 + 8 + 32
)

// allChainsNetworkID marks an address that is valid on every chain.
var allChainsNetworkID = [8]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

var (
	ErrInvalidAddress = errors.New("invalid 0zk address")
	ErrWrongPrefix    = errors.New("address prefix is not 0zk")
)

// Chain identifies the network an address is bound to.
type Chain struct {
	Type uint8
	ID   uint64
}

// EVMChain returns the chain descriptor for an EVM chain ID.
func EVMChain(id int64) *Chain {
	return &Chain{Type: ChainTypeEVM, ID: uint64(id)}
}

// AddressData is the decoded form of a 0zk address.
type AddressData struct {
	MasterPublicKey  *big.Int
	ViewingPublicKey []byte
	Chain            *Chain
	Version          uint8
}

// EncodeAddress encodes address data as a bech32m 0zk address.
func EncodeAddress(data AddressData) (string, error) {
	if data.MasterPublicKey == nil || data.MasterPublicKey.Sign() < 0 || data.MasterPublicKey.BitLen() > 256 {
		return "", fmt.Errorf("%w: master public key out of range", ErrInvalidAddress)
	}
	if len(data.ViewingPublicKey) != 32 {
		return "", fmt.Errorf("%w: viewing public key must be 32 bytes", ErrInvalidAddress)
	}
	version := data.Version
	if version == 0 {
		version = AddressVersion
	}

	payload := make([]byte, 0, payloadLength)
	payload = append(payload, version)
	payload = append(payload, data.MasterPublicKey.FillBytes(make([]byte, 32))...)
	networkID := encodeNetworkID(data.Chain)
	payload = append(payload, networkID[:]...)
	payload = append(payload, data.ViewingPublicKey...)

	words, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	encoded, err := bech32.EncodeM(AddressPrefix, words)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(encoded) > AddressLengthLimit {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidAddress, AddressLengthLimit)
	}
	return encoded, nil
}

// DecodeAddress parses a bech32m 0zk address.
func DecodeAddress(s string) (AddressData, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > AddressLengthLimit {
		return AddressData{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidAddress, AddressLengthLimit)
	}
	hrp, words, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return AddressData{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if hrp != AddressPrefix {
		return AddressData{}, ErrWrongPrefix
	}
	// DecodeNoLimit accepts either checksum constant; 0zk uses bech32m only.
	if again, err := bech32.EncodeM(hrp, words); err != nil || again != s {
		return AddressData{}, fmt.Errorf("%w: checksum is not bech32m", ErrInvalidAddress)
	}

	payload, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return AddressData{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(payload) != payloadLength {
		return AddressData{}, fmt.Errorf("%w: payload is %d bytes", ErrInvalidAddress, len(payload))
	}
	if payload[0] != AddressVersion {
		return AddressData{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidAddress, payload[0])
	}

	var networkID [8]byte
	copy(networkID[:], payload[33:41])
	return AddressData{
		Version:          payload[0],
		MasterPublicKey:  new(big.Int).SetBytes(payload[1:33]),
		Chain:            decodeNetworkID(networkID),
		ViewingPublicKey: bytes.Clone(payload[41:]),
	}, nil
}

// IsRailgunAddress reports whether s decodes as a 0zk address.
func IsRailgunAddress(s string) bool {
	_, err := DecodeAddress(s)
	return err == nil
}

// encodeNetworkID packs chain type (1 byte) and chain ID (7 bytes) and
// masks them with "railgun" so the bech32 string is not chain-recognisable.
func encodeNetworkID(chain *Chain) [8]byte {
	id := allChainsNetworkID
	if chain != nil {
		binary.BigEndian.PutUint64(id[:], chain.ID&0x00ffffffffffffff)
		id[0] = chain.Type
	}
	return xorRailgun(id)
}

func decodeNetworkID(masked [8]byte) *Chain {
	id := xorRailgun(masked)
	if id == allChainsNetworkID {
		return nil
	}
	chainID := binary.BigEndian.Uint64(id[:]) & 0x00ffffffffffffff
	return &Chain{Type: id[0], ID: chainID}
}

func xorRailgun(id [8]byte) [8]byte {
	var mask [8]byte
	copy(mask[:], "railgun")
	for i := range id {
		id[i] ^= mask[i]
	}
	return id
}
