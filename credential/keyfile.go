package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pemType       = "ENCRYPTED PRIVATE KEY"
	kdfName       = "pbkdf2-sha256"
	kdfIterations = 100000
	saltSize      = 32
	aesKeySize    = 32
)

// LoadOrCreateKey returns the RSA private key stored at path, unlocking it
// with passphrase. When the file does not exist a key of the given size is
// generated and written there first. Concurrent callers converge on whichever
// key was published first.
func LoadOrCreateKey(path string, passphrase []byte, bits int) (*rsa.PrivateKey, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty key passphrase", ErrCrypto)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return unlockKey(data, passphrase)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: read key file: %v", ErrCrypto, err)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generate key: %v", ErrCrypto, err)
	}
	block, err := sealKey(key, passphrase)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create key dir: %v", ErrCrypto, err)
	}
	tmp, err := os.CreateTemp(dir, ".key-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create key file: %v", ErrCrypto, err)
	}
	defer os.Remove(tmp.Name())

	if err := pem.Encode(tmp, block); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: write key file: %v", ErrCrypto, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: sync key file: %v", ErrCrypto, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: close key file: %v", ErrCrypto, err)
	}

	// Link fails if another process published a key first; use theirs.
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return LoadOrCreateKey(path, passphrase, bits)
		}
		return nil, fmt.Errorf("%w: publish key file: %v", ErrCrypto, err)
	}
	return key, nil
}

func sealKey(key *rsa.PrivateKey, passphrase []byte) (*pem.Block, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal key: %v", ErrCrypto, err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrCrypto, err)
	}
	gcm, err := newGCM(passphrase, salt, kdfIterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrCrypto, err)
	}

	return &pem.Block{
		Type: pemType,
		Headers: map[string]string{
			"Kdf":        kdfName,
			"Iterations": strconv.Itoa(kdfIterations),
			"Salt":       hex.EncodeToString(salt),
			"Nonce":      hex.EncodeToString(nonce),
		},
		Bytes: gcm.Seal(nil, nonce, der, nil),
	}, nil
}

func unlockKey(data, passphrase []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemType {
		return nil, fmt.Errorf("%w: key file is not an encrypted private key", ErrCrypto)
	}
	if block.Headers["Kdf"] != kdfName {
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrCrypto, block.Headers["Kdf"])
	}
	iterations, err := strconv.Atoi(block.Headers["Iterations"])
	if err != nil || iterations <= 0 {
		return nil, fmt.Errorf("%w: bad kdf iterations", ErrCrypto)
	}
	salt, err := hex.DecodeString(block.Headers["Salt"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt", ErrCrypto)
	}
	nonce, err := hex.DecodeString(block.Headers["Nonce"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce", ErrCrypto)
	}

	gcm, err := newGCM(passphrase, salt, iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce", ErrCrypto)
	}
	der, err := gcm.Open(nil, nonce, block.Bytes, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase or corrupt key file", ErrCrypto)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse key: %v", ErrCrypto, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: key file does not hold an RSA key", ErrCrypto)
	}
	return key, nil
}

func newGCM(passphrase, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key(passphrase, salt, iterations, aesKeySize, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("%w: cipher: %v", ErrCrypto, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm: %v", ErrCrypto, err)
	}
	return gcm, nil
}
