package executor

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"
	"strings"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
	"golang.org/x/crypto/chacha20poly1305"
)

const sessionKeySize = 32

// NewClassical returns the executor for classical algorithms built on the
// Go standard library and x/crypto. Algorithms are resolved by identity
// prefix, with the key size taken from the descriptor.
func NewClassical() Executor {
	return newTableExecutor(catalog.ProviderStdlib, resolveClassical)
}

func resolveClassical(work Work) (primitive, error) {
	id := strings.ToUpper(work.Algorithm)

	switch {
	case strings.HasPrefix(id, "RSA"):
		return newRSAPrimitive(work.KeySize)
	case strings.HasPrefix(id, "ECC"), strings.HasPrefix(id, "ECDSA"):
		return newECDSAPrimitive(work.KeySize)
	case strings.HasPrefix(id, "AES"):
		return newAESPrimitive(work.KeySize)
	case strings.HasPrefix(id, "CHACHA20"):
		return &aeadPrimitive{
			keySize: chacha20poly1305.KeySize,
			newAEAD: chacha20poly1305.New,
		}, nil
	}

	return nil, ErrUnsupported
}

// newRSAPrimitive builds RSA-OAEP key transport: a random session key is
// wrapped under the public key and the payload is sealed with it.
func newRSAPrimitive(bits int) (primitive, error) {
	if bits < 1024 || bits%8 != 0 {
		return nil, fmt.Errorf("invalid RSA modulus size %d: %w", bits, ErrUnsupported)
	}

	return &kemPrimitive[*rsa.PublicKey, *rsa.PrivateKey]{
		generate: func() (*rsa.PublicKey, *rsa.PrivateKey, error) {
			sk, err := rsa.GenerateKey(rand.Reader, bits)
			if err != nil {
				return nil, nil, err
			}

			return &sk.PublicKey, sk, nil
		},
		encapsulate: func(pk *rsa.PublicKey) ([]byte, []byte, error) {
			ss := make([]byte, sessionKeySize)
			if _, err := io.ReadFull(rand.Reader, ss); err != nil {
				return nil, nil, err
			}

			ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pk, ss, nil)
			if err != nil {
				return nil, nil, err
			}

			return ct, ss, nil
		},
		decapsulate: func(sk *rsa.PrivateKey, ct []byte) ([]byte, error) {
			return rsa.DecryptOAEP(sha256.New(), rand.Reader, sk, ct, nil)
		},
		publicKeySize: bits / 8,
	}, nil
}

func newECDSAPrimitive(bits int) (primitive, error) {
	var (
		curve elliptic.Curve
		hash  crypto.Hash
	)

	switch bits {
	case 256:
		curve, hash = elliptic.P256(), crypto.SHA256
	case 384:
		curve, hash = elliptic.P384(), crypto.SHA384
	case 521:
		curve, hash = elliptic.P521(), crypto.SHA512
	default:
		return nil, fmt.Errorf("no curve for %d-bit key: %w", bits, ErrUnsupported)
	}

	digest := func(msg []byte) []byte {
		switch hash {
		case crypto.SHA384:
			sum := sha512.Sum384(msg)

			return sum[:]
		case crypto.SHA512:
			sum := sha512.Sum512(msg)

			return sum[:]
		default:
			sum := sha256.Sum256(msg)

			return sum[:]
		}
	}

	// Uncompressed point encoding.
	pubSize := 1 + 2*((curve.Params().BitSize+7)/8)

	return &signPrimitive[*ecdsa.PublicKey, *ecdsa.PrivateKey]{
		generate: func() (*ecdsa.PublicKey, *ecdsa.PrivateKey, error) {
			sk, err := ecdsa.GenerateKey(curve, rand.Reader)
			if err != nil {
				return nil, nil, err
			}

			return &sk.PublicKey, sk, nil
		},
		sign: func(sk *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
			return ecdsa.SignASN1(rand.Reader, sk, digest(msg))
		},
		verify: func(pk *ecdsa.PublicKey, msg, sig []byte) bool {
			return ecdsa.VerifyASN1(pk, digest(msg), sig)
		},
		publicKeySize: pubSize,
	}, nil
}

func newAESPrimitive(bits int) (primitive, error) {
	switch bits {
	case 128, 192, 256:
	default:
		return nil, fmt.Errorf("invalid AES key size %d: %w", bits, ErrUnsupported)
	}

	return &aeadPrimitive{
		keySize: bits / 8,
		newAEAD: func(key []byte) (cipher.AEAD, error) {
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, err
			}

			return cipher.NewGCM(block)
		},
	}, nil
}
