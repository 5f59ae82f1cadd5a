package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/cryptoperf/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert reuses an existing id.
	ErrConflict = errors.New("id already exists")
)

const batchSize = 100

// Outcome filter values.
const (
	OutcomeAny     = ""
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AlgorithmFilter narrows ListAlgorithms.
type AlgorithmFilter struct {
	Family   string
	Category string
}

// RecordFilter selects test records. Zero values leave a field
// unconstrained; the time range is half-open [From, To).
type RecordFilter struct {
	UserID     string    `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Algorithms []string  `json:"algorithms,omitempty" yaml:"algorithms,omitempty"`
	Operations []string  `json:"operations,omitempty" yaml:"operations,omitempty"`
	From       time.Time `json:"from,omitzero" yaml:"from,omitempty"`
	To         time.Time `json:"to,omitzero" yaml:"to,omitempty"`
	Outcome    string    `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	BatchID    string    `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
}

// Cursor marks a position in the (created_at DESC, id DESC) ordering.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// Store provides persistence for algorithms, test records and reports.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Algorithms.
	UpsertAlgorithm(ctx context.Context, alg *Algorithm) error
	GetAlgorithm(ctx context.Context, identity string) (*Algorithm, error)
	ListAlgorithms(ctx context.Context, filter AlgorithmFilter) ([]Algorithm, error)
	CountRecordsForAlgorithm(ctx context.Context, identity string) (int64, error)

	// Test records.
	CreateRecord(ctx context.Context, rec *TestRecord) error
	BulkCreateRecords(ctx context.Context, recs []*TestRecord) error
	GetRecord(ctx context.Context, id uint) (*TestRecord, error)
	ListRecords(
		ctx context.Context, filter RecordFilter, after *Cursor, limit int,
	) ([]TestRecord, error)
	DeleteRecords(
		ctx context.Context, ids []uint, check func([]TestRecord) error,
	) (int64, error)

	// Reports.
	CreateReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id uint) (*Report, error)
	ListReports(ctx context.Context, userID, kind string) ([]Report, error)
	DeleteReport(ctx context.Context, id uint, check func(*Report) error) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dialector = postgres.Open(s.cfg.Postgres.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// One writer at a time; also keeps every caller on the same
		// in-memory database.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Algorithm{},
		&TestRecord{},
		&Report{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Algorithm operations ---

// UpsertAlgorithm inserts or updates an algorithm keyed by identity.
func (s *store) UpsertAlgorithm(ctx context.Context, alg *Algorithm) error {
	result := s.db.WithContext(ctx).
		Where("identity = ?", alg.Identity).
		// A map so that zero values (quantum_safe=false) are written too.
		Assign(map[string]any{
			"family":         alg.Family,
			"category":       alg.Category,
			"key_size":       alg.KeySize,
			"security_level": alg.SecurityLevel,
			"quantum_safe":   alg.QuantumSafe,
			"provider":       alg.Provider,
			"status":         alg.Status,
			"description":    alg.Description,
		}).
		FirstOrCreate(alg)
	if result.Error != nil {
		return fmt.Errorf("upserting algorithm: %w", result.Error)
	}

	return nil
}

// GetAlgorithm returns an algorithm by identity.
func (s *store) GetAlgorithm(
	ctx context.Context, identity string,
) (*Algorithm, error) {
	var alg Algorithm
	if err := s.db.WithContext(ctx).
		Where("identity = ?", identity).
		First(&alg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("algorithm %q: %w", identity, ErrNotFound)
		}

		return nil, fmt.Errorf("getting algorithm: %w", err)
	}

	return &alg, nil
}

// ListAlgorithms returns algorithms matching the filter ordered by identity.
func (s *store) ListAlgorithms(
	ctx context.Context, filter AlgorithmFilter,
) ([]Algorithm, error) {
	q := s.db.WithContext(ctx)

	if filter.Family != "" {
		q = q.Where("family = ?", filter.Family)
	}

	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}

	var algs []Algorithm
	if err := q.Order("identity ASC").Find(&algs).Error; err != nil {
		return nil, fmt.Errorf("listing algorithms: %w", err)
	}

	return algs, nil
}

// CountRecordsForAlgorithm returns how many records reference identity.
func (s *store) CountRecordsForAlgorithm(
	ctx context.Context, identity string,
) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&TestRecord{}).
		Where("algorithm = ?", identity).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}

	return count, nil
}

// --- Test record operations ---

// CreateRecord appends a single test record.
func (s *store) CreateRecord(ctx context.Context, rec *TestRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("creating record: %w", err)
	}

	return nil
}

// BulkCreateRecords inserts records in batches within one transaction.
// Records carrying an id that is already taken fail the whole call with
// ErrConflict.
func (s *store) BulkCreateRecords(
	ctx context.Context, recs []*TestRecord,
) error {
	if len(recs) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(recs))
	for _, rec := range recs {
		if rec.ID != 0 {
			ids = append(ids, rec.ID)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkFreeIDs(tx, ids); err != nil {
			return err
		}

		for i := 0; i < len(recs); i += batchSize {
			end := min(i+batchSize, len(recs))

			batch := recs[i:end]

			if err := tx.CreateInBatches(batch, len(batch)).Error; err != nil {
				return fmt.Errorf("bulk inserting records: %w", err)
			}
		}

		if len(ids) > 0 && s.cfg.Driver == "postgres" {
			// Explicit ids do not advance the serial sequence.
			if err := tx.Exec(resyncRecordSequenceSQL).Error; err != nil {
				return fmt.Errorf("resyncing record id sequence: %w", err)
			}
		}

		return nil
	})
}

const resyncRecordSequenceSQL = `SELECT setval(
	pg_get_serial_sequence('test_records', 'id'),
	(SELECT COALESCE(MAX(id), 1) FROM test_records))`

// checkFreeIDs fails with ErrConflict when any of ids is already stored or
// repeated within ids.
func checkFreeIDs(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}

	if dup := len(ids) - len(uniqueIDs(ids)); dup > 0 {
		return fmt.Errorf("%d repeated record ids: %w", dup, ErrConflict)
	}

	for i := 0; i < len(ids); i += batchSize {
		end := min(i+batchSize, len(ids))

		var taken []uint
		if err := tx.Model(&TestRecord{}).
			Where("id IN ?", ids[i:end]).
			Order("id ASC").
			Pluck("id", &taken).Error; err != nil {
			return fmt.Errorf("checking record ids: %w", err)
		}

		if len(taken) > 0 {
			return fmt.Errorf("record %d: %w", taken[0], ErrConflict)
		}
	}

	return nil
}

// GetRecord returns a test record by id.
func (s *store) GetRecord(ctx context.Context, id uint) (*TestRecord, error) {
	var rec TestRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("getting record: %w", err)
	}

	return &rec, nil
}

// ListRecords returns records matching filter newest first. A non-nil
// cursor resumes strictly after that position; limit <= 0 means no limit.
func (s *store) ListRecords(
	ctx context.Context, filter RecordFilter, after *Cursor, limit int,
) ([]TestRecord, error) {
	q := applyRecordFilter(s.db.WithContext(ctx), filter)

	if after != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			after.CreatedAt, after.CreatedAt, after.ID)
	}

	q = q.Order("created_at DESC").Order("id DESC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []TestRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	return recs, nil
}

// DeleteRecords removes the given records in one transaction. Every id
// must exist and check, when set, must accept the loaded rows; otherwise
// nothing is deleted.
func (s *store) DeleteRecords(
	ctx context.Context, ids []uint, check func([]TestRecord) error,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recs []TestRecord
		if err := tx.Where("id IN ?", ids).Find(&recs).Error; err != nil {
			return fmt.Errorf("loading records: %w", err)
		}

		if len(recs) != len(uniqueIDs(ids)) {
			return fmt.Errorf("%d of %d records: %w",
				len(uniqueIDs(ids))-len(recs), len(uniqueIDs(ids)), ErrNotFound)
		}

		if check != nil {
			if err := check(recs); err != nil {
				return err
			}
		}

		result := tx.Where("id IN ?", ids).Delete(&TestRecord{})
		if result.Error != nil {
			return fmt.Errorf("deleting records: %w", result.Error)
		}

		deleted = result.RowsAffected

		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

func applyRecordFilter(q *gorm.DB, filter RecordFilter) *gorm.DB {
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}

	if len(filter.Algorithms) > 0 {
		q = q.Where("algorithm IN ?", filter.Algorithms)
	}

	if len(filter.Operations) > 0 {
		q = q.Where("operation IN ?", filter.Operations)
	}

	if !filter.From.IsZero() {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}

	if !filter.To.IsZero() {
		q = q.Where("created_at < ?", filter.To.UTC())
	}

	switch filter.Outcome {
	case OutcomeSuccess:
		q = q.Where("success = ?", true)
	case OutcomeFailure:
		q = q.Where("success = ?", false)
	}

	if filter.BatchID != "" {
		q = q.Where("batch_id = ?", filter.BatchID)
	}

	return q
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}

// --- Report operations ---

// CreateReport persists a new report.
func (s *store) CreateReport(ctx context.Context, report *Report) error {
	if err := s.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("creating report: %w", err)
	}

	return nil
}

// GetReport returns a report by ID.
func (s *store) GetReport(ctx context.Context, id uint) (*Report, error) {
	var report Report
	if err := s.db.WithContext(ctx).First(&report, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("getting report: %w", err)
	}

	return &report, nil
}

// ListReports returns a user's reports newest first, optionally by kind.
func (s *store) ListReports(
	ctx context.Context, userID, kind string,
) ([]Report, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)

	if kind != "" {
		q = q.Where("kind = ?", kind)
	}

	var reports []Report
	if err := q.Order("created_at DESC").Order("id DESC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	return reports, nil
}

// DeleteReport removes a report after check accepts it.
func (s *store) DeleteReport(
	ctx context.Context, id uint, check func(*Report) error,
) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var report Report
		if err := tx.First(&report, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("report %d: %w", id, ErrNotFound)
			}

			return fmt.Errorf("loading report: %w", err)
		}

		if check != nil {
			if err := check(&report); err != nil {
				return err
			}
		}

		if err := tx.Delete(&Report{}, id).Error; err != nil {
			return fmt.Errorf("deleting report: %w", err)
		}

		return nil
	})
}
