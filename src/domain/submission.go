package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type SubmissionStatus string

const (
	SubmissionStatusQueued     SubmissionStatus = "queued"
	SubmissionStatusProcessing SubmissionStatus = "processing"
	SubmissionStatusCompleted  SubmissionStatus = "completed"
	SubmissionStatusFailed     SubmissionStatus = "failed"
)

type SubmissionMode string

const (
	SubmissionModeSingle SubmissionMode = "single"
	SubmissionModeBatch  SubmissionMode = "batch"
)

// Submission is an ordered set of calls to execute as one user operation.
type Submission struct {
	Calls []Call `json:"calls"`
}

// Mode reports whether the submission encodes as a single execute call or
// an executeBatch call.
func (s *Submission) Mode() SubmissionMode {
	if len(s.Calls) == 1 {
		return SubmissionModeSingle
	}
	return SubmissionModeBatch
}

// SubmissionResult is the outcome of a successfully included dispatch.
type SubmissionResult struct {
	UserOpHash            common.Hash `json:"userOpHash"`
	TxHash                common.Hash `json:"txHash"`
	Success               bool        `json:"success"`
	GasUsed               *big.Int    `json:"gasUsed,omitempty"`
	BlockNumber           *big.Int    `json:"blockNumber,omitempty"`
	AuthorizationAttached bool        `json:"authorizationAttached"`
}

// SubmissionModel is a persisted dispatch request and its outcome.
type SubmissionModel struct {
	ID                    uuid.UUID        `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	AccountAddress        string           `gorm:"type:varchar(42);not null"`
	ChainId               int64            `gorm:"not null"`
	EntryPointAddress     string           `gorm:"type:varchar(42);not null"`
	Calls                 json.RawMessage  `gorm:"type:jsonb;not null"`
	Status                SubmissionStatus `gorm:"type:varchar(20);not null;default:'queued'"`
	UserOpHash            string           `gorm:"type:varchar(66)"`
	TxHash                string           `gorm:"type:varchar(66)"`
	AuthorizationAttached bool             `gorm:"not null;default:false"`
	ErrorName             string           `gorm:"type:varchar(40)"`
	ErrorMessage          string           `gorm:"type:text"`
	CreatedAt             time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SubmissionModel) TableName() string {
	return "submissions"
}

// GetCalls returns the stored calls as typed descriptors.
func (m *SubmissionModel) GetCalls() ([]Call, error) {
	var calls []Call
	if err := json.Unmarshal(m.Calls, &calls); err != nil {
		return nil, fmt.Errorf("failed to unmarshal calls: %w", err)
	}
	return calls, nil
}

// SetCalls stores typed call descriptors in the jsonb column.
func (m *SubmissionModel) SetCalls(calls []Call) error {
	data, err := json.Marshal(calls)
	if err != nil {
		return fmt.Errorf("failed to marshal calls: %w", err)
	}
	m.Calls = data
	return nil
}
