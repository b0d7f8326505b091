package filter

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/juju/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	aesKeyLen      = 32 // AES-256
	aesBlockLen    = aes.BlockSize
	pbkdf2Iter     = 100000
	pbkdf2SaltSize = 16
)

// deriveKey derives a 32-byte AES-256 key from passphrase using PBKDF2
// with a SHA-256 PRF, the key-derivation scheme named in the filter
// chain's specification. Grounded on golang.org/x/crypto/pbkdf2 (a
// direct teacher dependency via golang.org/x/crypto) and the teacher's
// own pattern of pairing crypto/aes with crypto/cipher directly
// (no third-party AEAD wrapper).
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iter, aesKeyLen, sha256.New)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aesBlockLen != 0 {
		return nil, errors.Errorf("ciphertext is not a multiple of the block size")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aesBlockLen || padLen > len(data) {
		return nil, errors.Errorf("invalid PKCS-7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.Errorf("invalid PKCS-7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// CipherEncryptFilter buffers its input and produces, once flushed, a
// random salt and IV prefixed to the PKCS-7 padded AES-256-CBC
// ciphertext: salt(16) || iv(16) || ciphertext.
type CipherEncryptFilter struct {
	passphrase string
	buf        bytes.Buffer
	ready      bool
}

// NewCipherEncryptFilter returns an encrypting filter keyed by
// passphrase.
func NewCipherEncryptFilter(passphrase string) *CipherEncryptFilter {
	return &CipherEncryptFilter{passphrase: passphrase}
}

func (f *CipherEncryptFilter) Name() string { return "encrypt" }

func (f *CipherEncryptFilter) Process(in []byte) ([]byte, bool, error) {
	f.buf.Write(in)
	return nil, false, nil
}

func (f *CipherEncryptFilter) Flush() ([]byte, bool, error) {
	if f.ready {
		return nil, true, nil
	}
	f.ready = true

	salt := make([]byte, pbkdf2SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, false, errors.Trace(err)
	}
	iv := make([]byte, aesBlockLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, false, errors.Trace(err)
	}

	key := deriveKey(f.passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, false, errors.Trace(err)
	}

	padded := pkcs7Pad(f.buf.Bytes(), aesBlockLen)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, len(salt)+len(iv)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, true, nil
}

func (f *CipherEncryptFilter) Result() interface{} { return nil }

// CipherDecryptFilter reverses CipherEncryptFilter: it expects its
// complete input to be salt(16) || iv(16) || ciphertext.
type CipherDecryptFilter struct {
	passphrase string
	buf        bytes.Buffer
	ready      bool
}

// NewCipherDecryptFilter returns a decrypting filter keyed by
// passphrase.
func NewCipherDecryptFilter(passphrase string) *CipherDecryptFilter {
	return &CipherDecryptFilter{passphrase: passphrase}
}

func (f *CipherDecryptFilter) Name() string { return "decrypt" }

func (f *CipherDecryptFilter) Process(in []byte) ([]byte, bool, error) {
	f.buf.Write(in)
	return nil, false, nil
}

func (f *CipherDecryptFilter) Flush() ([]byte, bool, error) {
	if f.ready {
		return nil, true, nil
	}
	f.ready = true

	data := f.buf.Bytes()
	if len(data) < pbkdf2SaltSize+aesBlockLen {
		return nil, false, errors.Errorf("ciphertext too short to contain a salt and IV")
	}
	salt := data[:pbkdf2SaltSize]
	iv := data[pbkdf2SaltSize : pbkdf2SaltSize+aesBlockLen]
	ciphertext := data[pbkdf2SaltSize+aesBlockLen:]
	if len(ciphertext) == 0 || len(ciphertext)%aesBlockLen != 0 {
		return nil, false, errors.Errorf("ciphertext is not a multiple of the block size")
	}

	key := deriveKey(f.passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, false, errors.Trace(err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	out, err := pkcs7Unpad(padded)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	return out, true, nil
}

func (f *CipherDecryptFilter) Result() interface{} { return nil }
