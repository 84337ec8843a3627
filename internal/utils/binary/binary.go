// internal/utils/binary/binary.go
package binary

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DiscriminatorSize – длина anchor-дискриминатора аккаунта, инструкции или события
const DiscriminatorSize = 8

// AnchorDiscriminator возвращает первые 8 байт sha256("<namespace>:<name>").
func AnchorDiscriminator(namespace, name string) []byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	out := make([]byte, DiscriminatorSize)
	copy(out, sum[:DiscriminatorSize])
	return out
}

// HasDiscriminator проверяет, что данные начинаются с указанного дискриминатора
func HasDiscriminator(data, discriminator []byte) bool {
	return len(data) >= len(discriminator) && bytes.Equal(data[:len(discriminator)], discriminator)
}

// EnsureLength возвращает ошибку, если данных меньше, чем требуется для разбора
func EnsureLength(data []byte, need int, what string) error {
	if len(data) < need {
		return fmt.Errorf("data too short for %s: got %d, need %d", what, len(data), need)
	}
	return nil
}

// ReadUint64LittleEndian reads a uint64 from a byte slice in little-endian format
func ReadUint64LittleEndian(data []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(data[offset : offset+8])
}

// ReadUint16LittleEndian reads a uint16 from a byte slice in little-endian format
func ReadUint16LittleEndian(data []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(data[offset : offset+2])
}

// ReadBool reads a boolean from a byte slice (0 = false, non-zero = true)
func ReadBool(data []byte, offset int) bool {
	return data[offset] != 0
}

// ReadPubKey reads a Solana public key from a byte slice
func ReadPubKey(data []byte, offset int) solana.PublicKey {
	return solana.PublicKeyFromBytes(data[offset : offset+32])
}

// WriteUint64LittleEndian writes a uint64 to a byte slice in little-endian format
func WriteUint64LittleEndian(val uint64, data []byte, offset int) {
	binary.LittleEndian.PutUint64(data[offset:offset+8], val)
}

// WriteBool writes a boolean to a byte slice (false = 0, true = 1)
func WriteBool(val bool, data []byte, offset int) {
	if val {
		data[offset] = 1
	} else {
		data[offset] = 0
	}
}

// WritePubKey writes a Solana public key to a byte slice
func WritePubKey(key solana.PublicKey, data []byte, offset int) {
	copy(data[offset:offset+32], key[:])
}
