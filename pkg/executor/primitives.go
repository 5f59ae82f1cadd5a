package executor

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const payloadKeyInfo = "cryptoperf payload key"

// kemPrimitive encapsulates a shared secret and seals the payload under a
// key derived from it.
type kemPrimitive[PK, SK any] struct {
	generate      func() (PK, SK, error)
	encapsulate   func(pk PK) (ct, ss []byte, err error)
	decapsulate   func(sk SK, ct []byte) ([]byte, error)
	publicKeySize int

	once sync.Once
	pk   PK
	sk   SK
	err  error
}

func (p *kemPrimitive[PK, SK]) keys() (PK, SK, error) {
	p.once.Do(func() {
		p.pk, p.sk, p.err = p.generate()
	})

	return p.pk, p.sk, p.err
}

func (p *kemPrimitive[PK, SK]) run(op catalog.Operation, payload []byte) (int, error) {
	switch op {
	case catalog.OperationKeyGeneration:
		if _, _, err := p.generate(); err != nil {
			return 0, fmt.Errorf("generating key pair: %w", err)
		}

		return p.publicKeySize, nil

	case catalog.OperationEncryption:
		pk, _, err := p.keys()
		if err != nil {
			return 0, fmt.Errorf("generating key pair: %w", err)
		}

		ct, ss, err := p.encapsulate(pk)
		if err != nil {
			return 0, fmt.Errorf("encapsulating: %w", err)
		}

		sealed, err := sealWithSecret(ss, payload)
		if err != nil {
			return 0, err
		}

		return len(ct) + len(sealed), nil

	case catalog.OperationDecryption:
		pk, sk, err := p.keys()
		if err != nil {
			return 0, fmt.Errorf("generating key pair: %w", err)
		}

		ct, ss, err := p.encapsulate(pk)
		if err != nil {
			return 0, fmt.Errorf("encapsulating: %w", err)
		}

		sealed, err := sealWithSecret(ss, payload)
		if err != nil {
			return 0, err
		}

		recovered, err := p.decapsulate(sk, ct)
		if err != nil {
			return 0, fmt.Errorf("decapsulating: %w", err)
		}

		plain, err := openWithSecret(recovered, sealed)
		if err != nil {
			return 0, err
		}

		if !bytes.Equal(plain, payload) {
			return 0, fmt.Errorf("decrypted payload mismatch: %w", ErrVerification)
		}

		return len(plain), nil
	}

	return 0, unsupportedOperation(op)
}

// signPrimitive signs the payload, and for verification checks the
// signature it just produced.
type signPrimitive[PK, SK any] struct {
	generate      func() (PK, SK, error)
	sign          func(sk SK, msg []byte) ([]byte, error)
	verify        func(pk PK, msg, sig []byte) bool
	publicKeySize int

	once sync.Once
	pk   PK
	sk   SK
	err  error
}

func (p *signPrimitive[PK, SK]) keys() (PK, SK, error) {
	p.once.Do(func() {
		p.pk, p.sk, p.err = p.generate()
	})

	return p.pk, p.sk, p.err
}

func (p *signPrimitive[PK, SK]) run(op catalog.Operation, payload []byte) (int, error) {
	switch op {
	case catalog.OperationKeyGeneration:
		if _, _, err := p.generate(); err != nil {
			return 0, fmt.Errorf("generating key pair: %w", err)
		}

		return p.publicKeySize, nil

	case catalog.OperationSigning:
		_, sk, err := p.keys()
		if err != nil {
			return 0, fmt.Errorf("generating key pair: %w", err)
		}

		sig, err := p.sign(sk, payload)
		if err != nil {
			return 0, fmt.Errorf("signing: %w", err)
		}

		return len(sig), nil

	case catalog.OperationVerification:
		pk, sk, err := p.keys()
		if err != nil {
			return 0, fmt.Errorf("generating key pair: %w", err)
		}

		sig, err := p.sign(sk, payload)
		if err != nil {
			return 0, fmt.Errorf("signing: %w", err)
		}

		if !p.verify(pk, payload, sig) {
			return 0, fmt.Errorf("signature rejected: %w", ErrVerification)
		}

		return len(sig), nil
	}

	return 0, unsupportedOperation(op)
}

// aeadPrimitive is a symmetric cipher with a fixed size key.
type aeadPrimitive struct {
	keySize int
	newAEAD func(key []byte) (cipher.AEAD, error)

	once sync.Once
	aead cipher.AEAD
	err  error
}

func (p *aeadPrimitive) cipher() (cipher.AEAD, error) {
	p.once.Do(func() {
		key := make([]byte, p.keySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			p.err = fmt.Errorf("generating key: %w", err)

			return
		}

		p.aead, p.err = p.newAEAD(key)
	})

	return p.aead, p.err
}

func (p *aeadPrimitive) run(op catalog.Operation, payload []byte) (int, error) {
	switch op {
	case catalog.OperationKeyGeneration:
		key := make([]byte, p.keySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return 0, fmt.Errorf("generating key: %w", err)
		}

		if _, err := p.newAEAD(key); err != nil {
			return 0, fmt.Errorf("initialising cipher: %w", err)
		}

		return len(key), nil

	case catalog.OperationEncryption:
		aead, err := p.cipher()
		if err != nil {
			return 0, err
		}

		return len(seal(aead, payload)), nil

	case catalog.OperationDecryption:
		aead, err := p.cipher()
		if err != nil {
			return 0, err
		}

		plain, err := open(aead, seal(aead, payload))
		if err != nil {
			return 0, err
		}

		if !bytes.Equal(plain, payload) {
			return 0, fmt.Errorf("decrypted payload mismatch: %w", ErrVerification)
		}

		return len(plain), nil
	}

	return 0, unsupportedOperation(op)
}

// seal encrypts plaintext under a random nonce and prefixes the nonce.
func seal(aead cipher.AEAD, plaintext []byte) []byte {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		panic(fmt.Sprintf("reading nonce: %v", err))
	}

	return aead.Seal(nonce, nonce, plaintext, nil)
}

func open(aead cipher.AEAD, sealed []byte) ([]byte, error) {
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short: %w", ErrVerification)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", ErrVerification)
	}

	return plain, nil
}

// payloadAEAD derives a ChaCha20-Poly1305 key from a KEM shared secret.
func payloadAEAD(secret []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)

	kdf := hkdf.New(sha256.New, secret, nil, []byte(payloadKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving payload key: %w", err)
	}

	return chacha20poly1305.New(key)
}

func sealWithSecret(secret, payload []byte) ([]byte, error) {
	aead, err := payloadAEAD(secret)
	if err != nil {
		return nil, err
	}

	return seal(aead, payload), nil
}

func openWithSecret(secret, sealed []byte) ([]byte, error) {
	aead, err := payloadAEAD(secret)
	if err != nil {
		return nil, err
	}

	return open(aead, sealed)
}
