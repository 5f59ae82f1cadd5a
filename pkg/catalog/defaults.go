package catalog

import "github.com/ethpandaops/cryptoperf/pkg/config"

// Executor providers a descriptor can be bound to.
const (
	ProviderStdlib    = "stdlib"
	ProviderCircl     = "circl"
	ProviderHPQC      = "hpqc"
	ProviderSimulated = "simulated"
)

// DefaultDescriptors returns the built-in catalog.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		// Classical.
		{
			Identity: "RSA-2048", Family: FamilyClassical, Category: CategoryKeyExchange,
			KeySize: 2048, SecurityLevel: 112, Provider: ProviderStdlib, Status: StatusActive,
			Description: "RSA-OAEP key transport with a 2048-bit modulus",
		},
		{
			Identity: "RSA-4096", Family: FamilyClassical, Category: CategoryKeyExchange,
			KeySize: 4096, SecurityLevel: 140, Provider: ProviderStdlib, Status: StatusActive,
			Description: "RSA-OAEP key transport with a 4096-bit modulus",
		},
		{
			Identity: "ECC-P256", Family: FamilyClassical, Category: CategorySignature,
			KeySize: 256, SecurityLevel: 128, Provider: ProviderStdlib, Status: StatusActive,
			Description: "ECDSA over the NIST P-256 curve",
		},
		{
			Identity: "ECC-P384", Family: FamilyClassical, Category: CategorySignature,
			KeySize: 384, SecurityLevel: 192, Provider: ProviderStdlib, Status: StatusActive,
			Description: "ECDSA over the NIST P-384 curve",
		},
		{
			Identity: "AES-128", Family: FamilyClassical, Category: CategorySymmetricCipher,
			KeySize: 128, SecurityLevel: 128, Provider: ProviderStdlib, Status: StatusActive,
			Description: "AES-GCM with a 128-bit key",
		},
		{
			Identity: "AES-256", Family: FamilyClassical, Category: CategorySymmetricCipher,
			KeySize: 256, SecurityLevel: 256, Provider: ProviderStdlib, Status: StatusActive,
			Description: "AES-GCM with a 256-bit key",
		},
		{
			Identity: "ChaCha20-Poly1305", Family: FamilyClassical, Category: CategorySymmetricCipher,
			KeySize: 256, SecurityLevel: 256, Provider: ProviderStdlib, Status: StatusActive,
			Description: "ChaCha20-Poly1305 AEAD",
		},
		{
			Identity: "X25519", Family: FamilyClassical, Category: CategoryKeyExchange,
			KeySize: 255, SecurityLevel: 128, Provider: ProviderHPQC, Status: StatusActive,
			Description: "X25519 Diffie-Hellman used as a KEM",
		},
		{
			Identity: "Ed25519", Family: FamilyClassical, Category: CategorySignature,
			KeySize: 255, SecurityLevel: 128, Provider: ProviderHPQC, Status: StatusActive,
			Description: "Edwards-curve signatures over Curve25519",
		},

		// Post-quantum.
		{
			Identity: "Kyber-512", Family: FamilyPostQuantum, Category: CategoryKeyExchange,
			KeySize: 512, SecurityLevel: 1, QuantumSafe: true, Provider: ProviderCircl, Status: StatusActive,
			Description: "CRYSTALS-Kyber, NIST security level 1",
		},
		{
			Identity: "Kyber-768", Family: FamilyPostQuantum, Category: CategoryKeyExchange,
			KeySize: 768, SecurityLevel: 3, QuantumSafe: true, Provider: ProviderCircl, Status: StatusActive,
			Description: "CRYSTALS-Kyber, NIST security level 3",
		},
		{
			Identity: "Kyber-1024", Family: FamilyPostQuantum, Category: CategoryKeyExchange,
			KeySize: 1024, SecurityLevel: 5, QuantumSafe: true, Provider: ProviderCircl, Status: StatusActive,
			Description: "CRYSTALS-Kyber, NIST security level 5",
		},
		{
			Identity: "ML-KEM-768", Family: FamilyPostQuantum, Category: CategoryKeyExchange,
			KeySize: 768, SecurityLevel: 3, QuantumSafe: true, Provider: ProviderCircl, Status: StatusActive,
			Description: "FIPS 203 ML-KEM-768",
		},
		{
			Identity: "Dilithium-2", Family: FamilyPostQuantum, Category: CategorySignature,
			KeySize: 2, SecurityLevel: 2, QuantumSafe: true, Provider: ProviderCircl, Status: StatusActive,
			Description: "CRYSTALS-Dilithium, NIST security level 2",
		},
		{
			Identity: "Dilithium-3", Family: FamilyPostQuantum, Category: CategorySignature,
			KeySize: 3, SecurityLevel: 3, QuantumSafe: true, Provider: ProviderCircl, Status: StatusActive,
			Description: "CRYSTALS-Dilithium, NIST security level 3",
		},
		{
			Identity: "ML-DSA-65", Family: FamilyPostQuantum, Category: CategorySignature,
			KeySize: 65, SecurityLevel: 3, QuantumSafe: true, Provider: ProviderCircl, Status: StatusActive,
			Description: "FIPS 204 ML-DSA-65",
		},
		{
			Identity: "Falcon-512", Family: FamilyPostQuantum, Category: CategorySignature,
			KeySize: 512, SecurityLevel: 1, QuantumSafe: true, Provider: ProviderSimulated, Status: StatusExperimental,
			Description: "Falcon-512 lattice signatures (simulated sizes)",
		},
		{
			Identity: "Falcon-1024", Family: FamilyPostQuantum, Category: CategorySignature,
			KeySize: 1024, SecurityLevel: 5, QuantumSafe: true, Provider: ProviderSimulated, Status: StatusExperimental,
			Description: "Falcon-1024 lattice signatures (simulated sizes)",
		},
		{
			Identity: "X-Wing", Family: FamilyPostQuantum, Category: CategoryKeyExchange,
			KeySize: 768, SecurityLevel: 3, QuantumSafe: true, Provider: ProviderHPQC, Status: StatusActive,
			Description: "Hybrid ML-KEM-768 and X25519 KEM",
		},
		{
			Identity: "sntrup4591761", Family: FamilyPostQuantum, Category: CategoryKeyExchange,
			KeySize: 761, SecurityLevel: 2, QuantumSafe: true, Provider: ProviderHPQC, Status: StatusExperimental,
			Description: "Streamlined NTRU Prime KEM",
		},
	}
}

// FromConfig converts configured algorithm entries to descriptors.
// Entries without a status are treated as active; post-quantum entries
// are always quantum-safe.
func FromConfig(entries []config.AlgorithmConfig) []Descriptor {
	descriptors := make([]Descriptor, 0, len(entries))

	for _, e := range entries {
		status := e.Status
		if status == "" {
			status = StatusActive
		}

		descriptors = append(descriptors, Descriptor{
			Identity:      e.Identity,
			Family:        Family(e.Family),
			Category:      Category(e.Category),
			KeySize:       e.KeySize,
			SecurityLevel: e.SecurityLevel,
			QuantumSafe:   e.QuantumSafe || Family(e.Family) == FamilyPostQuantum,
			Provider:      e.Provider,
			Status:        status,
			Description:   e.Description,
		})
	}

	return descriptors
}

// SeedSet returns the descriptors to seed at startup: the built-in set
// when enabled, followed by configured entries. A configured entry
// replaces a built-in one with the same identity.
func SeedSet(cfg *config.CatalogConfig) []Descriptor {
	extra := FromConfig(cfg.Algorithms)

	if !cfg.SeedDefaults {
		return extra
	}

	overridden := make(map[string]struct{}, len(extra))
	for _, d := range extra {
		overridden[d.Identity] = struct{}{}
	}

	out := make([]Descriptor, 0, len(extra)+24)

	for _, d := range DefaultDescriptors() {
		if _, ok := overridden[d.Identity]; ok {
			continue
		}

		out = append(out, d)
	}

	return append(out, extra...)
}
