package lorawan

import (
	"crypto/aes"
	"fmt"

	"github.com/jacobsa/crypto/cmac"
)

// aesECBEncrypt encrypts data (a multiple of 16 bytes) under key, block
// by block, with no padding and no chaining between blocks.
func aesECBEncrypt(key AES128Key, data []byte) ([]byte, error) {
	return aesECB(key, data, true)
}

// aesECBDecrypt is the inverse of aesECBEncrypt.
func aesECBDecrypt(key AES128Key, data []byte) ([]byte, error) {
	return aesECB(key, data, false)
}

func aesECB(key AES128Key, data []byte, encrypt bool) ([]byte, error) {
	if len(data)%16 != 0 {
		return nil, fmt.Errorf("lorawan: ECB input must be a multiple of 16 bytes, got %d", len(data))
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	if block.BlockSize() != 16 {
		return nil, fmt.Errorf("lorawan: expected a 16 byte block size, got %d", block.BlockSize())
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data)/16; i++ {
		offset := i * 16
		if encrypt {
			block.Encrypt(out[offset:offset+16], data[offset:offset+16])
		} else {
			block.Decrypt(out[offset:offset+16], data[offset:offset+16])
		}
	}
	return out, nil
}

// aesCMAC computes the RFC 4493 AES-CMAC of msg under key. Callers that
// need a MIC take only the first 4 bytes of the result.
func aesCMAC(key AES128Key, msg []byte) ([]byte, error) {
	hash, err := cmac.New(key[:])
	if err != nil {
		return nil, err
	}
	if _, err := hash.Write(msg); err != nil {
		return nil, err
	}
	sum := hash.Sum(nil)
	if len(sum) < 4 {
		return nil, fmt.Errorf("lorawan: CMAC returned %d bytes, expected at least 4", len(sum))
	}
	return sum, nil
}

// computeMIC returns the first 4 bytes of AES-CMAC(key, msg) as a MIC.
func computeMIC(key AES128Key, msg []byte) (MIC, error) {
	var mic MIC
	sum, err := aesCMAC(key, msg)
	if err != nil {
		return mic, err
	}
	copy(mic[:], sum[0:4])
	return mic, nil
}
