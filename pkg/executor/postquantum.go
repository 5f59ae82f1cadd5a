package executor

import (
	"crypto/rand"

	circlkem "github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber1024"
	"github.com/cloudflare/circl/kem/kyber/kyber512"
	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	circlsign "github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode2"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	hpqckem "github.com/katzenpost/hpqc/kem"
	"github.com/katzenpost/hpqc/kem/adapter"
	"github.com/katzenpost/hpqc/kem/sntrup"
	"github.com/katzenpost/hpqc/kem/xwing"
	"github.com/katzenpost/hpqc/nike/x25519"
	hpqcsign "github.com/katzenpost/hpqc/sign"
	"github.com/katzenpost/hpqc/sign/ed25519"

	"github.com/ethpandaops/cryptoperf/pkg/catalog"
)

// NewCircl returns the executor for the lattice schemes implemented by
// cloudflare/circl.
func NewCircl() Executor {
	kems := map[string]circlkem.Scheme{
		"Kyber-512":  kyber512.Scheme(),
		"Kyber-768":  kyber768.Scheme(),
		"Kyber-1024": kyber1024.Scheme(),
		"ML-KEM-768": mlkem768.Scheme(),
	}

	signers := map[string]circlsign.Scheme{
		"Dilithium-2": mode2.Scheme(),
		"Dilithium-3": mode3.Scheme(),
		"ML-DSA-65":   mldsa65.Scheme(),
	}

	return newTableExecutor(catalog.ProviderCircl, func(work Work) (primitive, error) {
		if s, ok := kems[work.Algorithm]; ok {
			return circlKEM(s), nil
		}

		if s, ok := signers[work.Algorithm]; ok {
			return circlSigner(s), nil
		}

		return nil, ErrUnsupported
	})
}

func circlKEM(s circlkem.Scheme) primitive {
	return &kemPrimitive[circlkem.PublicKey, circlkem.PrivateKey]{
		generate:      s.GenerateKeyPair,
		encapsulate:   s.Encapsulate,
		decapsulate:   s.Decapsulate,
		publicKeySize: s.PublicKeySize(),
	}
}

func circlSigner(s circlsign.Scheme) primitive {
	return &signPrimitive[circlsign.PublicKey, circlsign.PrivateKey]{
		generate: s.GenerateKey,
		sign: func(sk circlsign.PrivateKey, msg []byte) ([]byte, error) {
			return s.Sign(sk, msg, nil), nil
		},
		verify: func(pk circlsign.PublicKey, msg, sig []byte) bool {
			return s.Verify(pk, msg, sig, nil)
		},
		publicKeySize: s.PublicKeySize(),
	}
}

// NewHPQC returns the executor for schemes implemented by katzenpost/hpqc:
// the X-Wing hybrid, NTRU Prime, and the Curve25519 baselines.
func NewHPQC() Executor {
	kems := map[string]hpqckem.Scheme{
		"X-Wing":        xwing.Scheme(),
		"sntrup4591761": sntrup.Scheme(),
		"X25519":        adapter.FromNIKE(x25519.Scheme(rand.Reader)),
	}

	signers := map[string]hpqcsign.Scheme{
		"Ed25519": ed25519.Scheme(),
	}

	return newTableExecutor(catalog.ProviderHPQC, func(work Work) (primitive, error) {
		if s, ok := kems[work.Algorithm]; ok {
			return hpqcKEM(s), nil
		}

		if s, ok := signers[work.Algorithm]; ok {
			return hpqcSigner(s), nil
		}

		return nil, ErrUnsupported
	})
}

func hpqcKEM(s hpqckem.Scheme) primitive {
	return &kemPrimitive[hpqckem.PublicKey, hpqckem.PrivateKey]{
		generate:      s.GenerateKeyPair,
		encapsulate:   s.Encapsulate,
		decapsulate:   s.Decapsulate,
		publicKeySize: s.PublicKeySize(),
	}
}

func hpqcSigner(s hpqcsign.Scheme) primitive {
	return &signPrimitive[hpqcsign.PublicKey, hpqcsign.PrivateKey]{
		generate: s.GenerateKey,
		sign: func(sk hpqcsign.PrivateKey, msg []byte) ([]byte, error) {
			return s.Sign(sk, msg, nil), nil
		},
		verify: func(pk hpqcsign.PublicKey, msg, sig []byte) bool {
			return s.Verify(pk, msg, sig, nil)
		},
		publicKeySize: s.PublicKeySize(),
	}
}
