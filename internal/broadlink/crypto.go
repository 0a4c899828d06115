package broadlink

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

var (
	// defaultKey is the shared key used until auth completes.
	defaultKey = []byte{
		0x09, 0x76, 0x28, 0x34, 0x3f, 0xe9, 0x9e, 0x23,
		0x76, 0x5c, 0x15, 0x13, 0xac, 0xcf, 0x8b, 0x02,
	}

	// iv is fixed for every device.
	iv = []byte{
		0x56, 0x2e, 0x17, 0x99, 0x6d, 0x09, 0x3d, 0x28,
		0xdd, 0xb3, 0xba, 0x69, 0x5a, 0x2e, 0x6f, 0x58,
	}
)

// pad zero-fills b to a multiple of the AES block size.
func pad(b []byte) []byte {
	if rem := len(b) % aes.BlockSize; rem != 0 {
		return append(b, make([]byte, aes.BlockSize-rem)...)
	}
	return b
}

func encrypt(key, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	src := pad(append([]byte(nil), plain...))
	out := make([]byte, len(src))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, src)
	return out, nil
}

func decrypt(key, enc []byte) ([]byte, error) {
	if len(enc)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: encrypted payload of %d bytes", ErrInvalidPacket, len(enc))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	out := make([]byte, len(enc))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, enc)
	return out, nil
}
