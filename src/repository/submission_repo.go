package repository

import (
	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

type SubmissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) CreateSubmission(accountAddress common.Address, chainId int64, entryPoint common.Address, calls []domain.Call) (*domain.SubmissionModel, error) {
	submission := &domain.SubmissionModel{
		AccountAddress:    accountAddress.Hex(),
		ChainId:           chainId,
		EntryPointAddress: entryPoint.Hex(),
		Status:            domain.SubmissionStatusQueued,
	}
	if err := submission.SetCalls(calls); err != nil {
		return nil, err
	}

	if err := r.db.Create(submission).Error; err != nil {
		return nil, err
	}

	return submission, nil
}

// FindSubmissions retrieves all submissions, newest first.
func (r *SubmissionRepository) FindSubmissions() ([]*domain.SubmissionModel, error) {
	var submissions []*domain.SubmissionModel
	if err := r.db.Order("created_at desc").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

// FindSubmissionById retrieves a specific submission by its ID
func (r *SubmissionRepository) FindSubmissionById(id string) (*domain.SubmissionModel, error) {
	var submission domain.SubmissionModel
	if err := r.db.Where("id = ?", id).First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

// UpdateSubmissionStatus updates the status of a submission by its ID
func (r *SubmissionRepository) UpdateSubmissionStatus(id string, status domain.SubmissionStatus) error {
	return r.db.Model(&domain.SubmissionModel{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// MarkSubmissionCompleted records a successful dispatch outcome.
func (r *SubmissionRepository) MarkSubmissionCompleted(id string, result *domain.SubmissionResult) error {
	updates := map[string]interface{}{
		"status":                 domain.SubmissionStatusCompleted,
		"user_op_hash":           result.UserOpHash.Hex(),
		"tx_hash":                result.TxHash.Hex(),
		"authorization_attached": result.AuthorizationAttached,
	}
	return r.db.Model(&domain.SubmissionModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkSubmissionFailed records a failed dispatch with its error class.
func (r *SubmissionRepository) MarkSubmissionFailed(id string, errorName string, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        domain.SubmissionStatusFailed,
		"error_name":    errorName,
		"error_message": errorMessage,
	}
	return r.db.Model(&domain.SubmissionModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}
