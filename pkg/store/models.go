package store

import (
	"time"
)

// Algorithm is a persisted catalog descriptor.
type Algorithm struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	Identity      string    `gorm:"uniqueIndex;not null" json:"identity"`
	Family        string    `gorm:"not null;index" json:"family"`
	Category      string    `gorm:"not null;index" json:"category"`
	KeySize       int       `json:"key_size"`
	SecurityLevel int       `json:"security_level"`
	QuantumSafe   bool      `gorm:"not null" json:"quantum_safe"`
	Provider      string    `gorm:"not null" json:"provider"`
	Status        string    `gorm:"not null" json:"status"`
	Description   string    `gorm:"type:text" json:"description"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TestRecord is the outcome of one timed trial. Rows are append-only.
type TestRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id" yaml:"id"`
	UserID        string    `gorm:"not null;index:idx_records_user_created" json:"user_id" yaml:"user_id"`
	Algorithm     string    `gorm:"not null;index" json:"algorithm" yaml:"algorithm"`
	Operation     string    `gorm:"not null;index" json:"operation" yaml:"operation"`
	InputSize     int       `json:"input_size" yaml:"input_size"`
	OutputSize    int       `json:"output_size" yaml:"output_size"`
	Success       bool      `gorm:"not null;index" json:"success" yaml:"success"`
	ErrorCategory string    `json:"error_category,omitempty" yaml:"error_category,omitempty"`
	ErrorMessage  string    `gorm:"type:text" json:"error_message,omitempty" yaml:"error_message,omitempty"`
	DurationNs    int64     `gorm:"not null" json:"duration_ns" yaml:"duration_ns"`
	BatchID       string    `gorm:"index" json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
	CreatedAt     time.Time `gorm:"not null;index:idx_records_user_created" json:"created_at" yaml:"created_at"`
}

// Duration returns the elapsed trial time.
func (r *TestRecord) Duration() time.Duration {
	return time.Duration(r.DurationNs)
}

// Report is a persisted report snapshot.
type Report struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         string    `gorm:"not null;index"`
	Kind           string    `gorm:"not null;index"`
	Title          string    `gorm:"not null"`
	AlgorithmsJSON string    `gorm:"type:text"`
	WindowFrom     time.Time `gorm:"not null"`
	WindowTo       time.Time `gorm:"not null"`
	BodyJSON       string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"index"`
}
