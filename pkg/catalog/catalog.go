// Package catalog holds the registry of algorithm descriptors that trials
// are run against.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethpandaops/cryptoperf/pkg/store"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when an algorithm identity is not in the catalog.
var ErrNotFound = errors.New("algorithm not found")

// ErrInvalidDescriptor is returned by Seed for malformed descriptors.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// Family separates classical from post-quantum algorithms.
type Family string

// Algorithm families.
const (
	FamilyClassical   Family = "classical"
	FamilyPostQuantum Family = "post-quantum"
)

// Category is the functional class of an algorithm.
type Category string

// Algorithm categories.
const (
	CategoryKeyExchange     Category = "key-exchange"
	CategorySignature       Category = "signature"
	CategorySymmetricCipher Category = "symmetric-cipher"
)

// Operation is the kind of work a trial performs.
type Operation string

// Trial operations. For key-exchange algorithms encryption and decryption
// denote encapsulation and decapsulation.
const (
	OperationKeyGeneration Operation = "key-generation"
	OperationEncryption    Operation = "encryption"
	OperationDecryption    Operation = "decryption"
	OperationSigning       Operation = "signing"
	OperationVerification  Operation = "verification"
)

// Operations lists every operation in display order.
var Operations = []Operation{
	OperationKeyGeneration,
	OperationEncryption,
	OperationDecryption,
	OperationSigning,
	OperationVerification,
}

var supportedOperations = map[Category][]Operation{
	CategorySymmetricCipher: {OperationKeyGeneration, OperationEncryption, OperationDecryption},
	CategorySignature:       {OperationKeyGeneration, OperationSigning, OperationVerification},
	CategoryKeyExchange:     {OperationKeyGeneration, OperationEncryption, OperationDecryption},
}

// Descriptor statuses.
const (
	StatusActive       = "active"
	StatusExperimental = "experimental"
	StatusDeprecated   = "deprecated"
)

// Descriptor is the static metadata of one algorithm.
type Descriptor struct {
	Identity      string   `json:"identity"`
	Family        Family   `json:"family"`
	Category      Category `json:"category"`
	KeySize       int      `json:"key_size"`
	SecurityLevel int      `json:"security_level,omitempty"`
	QuantumSafe   bool     `json:"quantum_safe"`
	Provider      string   `json:"provider"`
	Status        string   `json:"status"`
	Description   string   `json:"description,omitempty"`
}

// Supports reports whether op is valid for the descriptor's category.
func (d *Descriptor) Supports(op Operation) bool {
	for _, supported := range supportedOperations[d.Category] {
		if supported == op {
			return true
		}
	}

	return false
}

// SupportedOperations returns the operations valid for the descriptor.
func (d *Descriptor) SupportedOperations() []Operation {
	return append([]Operation(nil), supportedOperations[d.Category]...)
}

// Validate checks the descriptor's required fields and enumerations.
func (d *Descriptor) Validate() error {
	if d.Identity == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidDescriptor)
	}

	switch d.Family {
	case FamilyClassical, FamilyPostQuantum:
	default:
		return fmt.Errorf("%w: %s: unknown family %q",
			ErrInvalidDescriptor, d.Identity, d.Family)
	}

	if d.QuantumSafe != (d.Family == FamilyPostQuantum) {
		return fmt.Errorf("%w: %s: quantum_safe=%t contradicts family %q",
			ErrInvalidDescriptor, d.Identity, d.QuantumSafe, d.Family)
	}

	if _, ok := supportedOperations[d.Category]; !ok {
		return fmt.Errorf("%w: %s: unknown category %q",
			ErrInvalidDescriptor, d.Identity, d.Category)
	}

	if d.Provider == "" {
		return fmt.Errorf("%w: %s: provider is required",
			ErrInvalidDescriptor, d.Identity)
	}

	switch d.Status {
	case StatusActive, StatusExperimental, StatusDeprecated:
	default:
		return fmt.Errorf("%w: %s: unknown status %q",
			ErrInvalidDescriptor, d.Identity, d.Status)
	}

	return nil
}

// ValidOperation reports whether op names a known operation.
func ValidOperation(op Operation) bool {
	for _, known := range Operations {
		if known == op {
			return true
		}
	}

	return false
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Family   Family
	Category Category
}

// Summary counts descriptors by family and category.
type Summary struct {
	Classical   int              `json:"classical"`
	PostQuantum int              `json:"post_quantum"`
	Total       int              `json:"total"`
	Categories  map[Category]int `json:"categories"`
}

// Summarize tallies descriptors. Every known category is present, with a
// zero count when it has no descriptors.
func Summarize(descriptors []Descriptor) Summary {
	sum := Summary{
		Total:      len(descriptors),
		Categories: make(map[Category]int, len(supportedOperations)),
	}

	for category := range supportedOperations {
		sum.Categories[category] = 0
	}

	for i := range descriptors {
		switch descriptors[i].Family {
		case FamilyClassical:
			sum.Classical++
		case FamilyPostQuantum:
			sum.PostQuantum++
		}

		sum.Categories[descriptors[i].Category]++
	}

	return sum
}

// SeedSummary counts what a Seed call did.
type SeedSummary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Catalog resolves and lists algorithm descriptors.
type Catalog interface {
	// Get returns the descriptor for identity or ErrNotFound.
	Get(ctx context.Context, identity string) (*Descriptor, error)

	// List returns descriptors, classical before post-quantum, then by
	// identity.
	List(ctx context.Context, filter Filter) ([]Descriptor, error)

	// Seed upserts descriptors by identity. A descriptor already referenced
	// by test records is never rewritten.
	Seed(ctx context.Context, descriptors []Descriptor) (SeedSummary, error)
}

// Compile-time interface check.
var _ Catalog = (*catalog)(nil)

type catalog struct {
	log   logrus.FieldLogger
	store store.Store
}

// New creates a Catalog backed by st.
func New(log logrus.FieldLogger, st store.Store) Catalog {
	return &catalog{
		log:   log.WithField("component", "catalog"),
		store: st,
	}
}

// Get returns the descriptor registered under identity.
func (c *catalog) Get(ctx context.Context, identity string) (*Descriptor, error) {
	alg, err := c.store.GetAlgorithm(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%q: %w", identity, ErrNotFound)
		}

		return nil, fmt.Errorf("getting algorithm: %w", err)
	}

	d := fromModel(alg)

	return &d, nil
}

// List returns descriptors matching filter in catalog order.
func (c *catalog) List(ctx context.Context, filter Filter) ([]Descriptor, error) {
	algs, err := c.store.ListAlgorithms(ctx, store.AlgorithmFilter{
		Family:   string(filter.Family),
		Category: string(filter.Category),
	})
	if err != nil {
		return nil, fmt.Errorf("listing algorithms: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(algs))
	for i := range algs {
		descriptors = append(descriptors, fromModel(&algs[i]))
	}

	SortDescriptors(descriptors)

	return descriptors, nil
}

// Seed validates every descriptor before writing any of them.
func (c *catalog) Seed(
	ctx context.Context, descriptors []Descriptor,
) (SeedSummary, error) {
	var summary SeedSummary

	seen := make(map[string]struct{}, len(descriptors))

	for i := range descriptors {
		if err := descriptors[i].Validate(); err != nil {
			return summary, err
		}

		if _, dup := seen[descriptors[i].Identity]; dup {
			return summary, fmt.Errorf("%w: duplicate identity %q",
				ErrInvalidDescriptor, descriptors[i].Identity)
		}

		seen[descriptors[i].Identity] = struct{}{}
	}

	for i := range descriptors {
		d := descriptors[i]

		existing, err := c.store.GetAlgorithm(ctx, d.Identity)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return summary, fmt.Errorf("seeding %s: %w", d.Identity, err)
		}

		if existing != nil {
			if fromModel(existing) == d {
				summary.Unchanged++

				continue
			}

			refs, err := c.store.CountRecordsForAlgorithm(ctx, d.Identity)
			if err != nil {
				return summary, fmt.Errorf("seeding %s: %w", d.Identity, err)
			}

			if refs > 0 {
				c.log.WithFields(logrus.Fields{
					"algorithm": d.Identity,
					"records":   refs,
				}).Warn("Descriptor is referenced by test records, keeping stored version")

				summary.Skipped++

				continue
			}
		}

		if err := c.store.UpsertAlgorithm(ctx, toModel(&d)); err != nil {
			return summary, fmt.Errorf("seeding %s: %w", d.Identity, err)
		}

		if existing != nil {
			summary.Updated++
		} else {
			summary.Created++
		}
	}

	c.log.WithFields(logrus.Fields{
		"created":   summary.Created,
		"updated":   summary.Updated,
		"unchanged": summary.Unchanged,
		"skipped":   summary.Skipped,
	}).Info("Catalog seeded")

	return summary, nil
}

// SortDescriptors orders classical before post-quantum, then by identity.
func SortDescriptors(descriptors []Descriptor) {
	sort.SliceStable(descriptors, func(i, j int) bool {
		ri, rj := familyRank(descriptors[i].Family), familyRank(descriptors[j].Family)
		if ri != rj {
			return ri < rj
		}

		return descriptors[i].Identity < descriptors[j].Identity
	})
}

func familyRank(f Family) int {
	if f == FamilyClassical {
		return 0
	}

	return 1
}

func fromModel(alg *store.Algorithm) Descriptor {
	return Descriptor{
		Identity:      alg.Identity,
		Family:        Family(alg.Family),
		Category:      Category(alg.Category),
		KeySize:       alg.KeySize,
		SecurityLevel: alg.SecurityLevel,
		QuantumSafe:   alg.QuantumSafe,
		Provider:      alg.Provider,
		Status:        alg.Status,
		Description:   alg.Description,
	}
}

func toModel(d *Descriptor) *store.Algorithm {
	return &store.Algorithm{
		Identity:      d.Identity,
		Family:        string(d.Family),
		Category:      string(d.Category),
		KeySize:       d.KeySize,
		SecurityLevel: d.SecurityLevel,
		QuantumSafe:   d.QuantumSafe,
		Provider:      d.Provider,
		Status:        d.Status,
		Description:   d.Description,
	}
}
