package repository

import (
	"math/big"
	"testing"

	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethaccount/delegation-demo/src/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

func TestSubmissionRepository_CreateSubmission(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubmissionRepository(db)

	accountAddress := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	chainId := int64(11155111)
	entryPointAddress := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

	calls := []domain.Call{
		{
			To:   common.HexToAddress("0x1234567890123456789012345678901234567890"),
			Data: hexutil.Bytes{0xa9, 0x05, 0x9c, 0xbb},
		},
		{
			To:    common.HexToAddress("0x2234567890123456789012345678901234567890"),
			Value: (*hexutil.Big)(big.NewInt(1000)),
			Data:  hexutil.Bytes{0xde, 0xad, 0xbe, 0xef},
		},
	}

	submission, err := repo.CreateSubmission(accountAddress, chainId, entryPointAddress, calls)
	if err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}

	if submission == nil {
		t.Fatal("CreateSubmission returned nil submission")
	}

	if submission.ID == uuid.Nil {
		t.Error("Submission ID should be generated")
	}

	if submission.AccountAddress != accountAddress.Hex() {
		t.Errorf("Expected accountAddress %s, got %s", accountAddress.Hex(), submission.AccountAddress)
	}

	if submission.ChainId != chainId {
		t.Errorf("Expected chainId %d, got %d", chainId, submission.ChainId)
	}

	if submission.Status != domain.SubmissionStatusQueued {
		t.Errorf("Expected status %s, got %s", domain.SubmissionStatusQueued, submission.Status)
	}

	// Verify calls round-trip through jsonb
	stored, err := submission.GetCalls()
	if err != nil {
		t.Fatalf("GetCalls failed: %v", err)
	}

	if len(stored) != len(calls) {
		t.Fatalf("Expected %d calls, got %d", len(calls), len(stored))
	}

	for i := range calls {
		if stored[i].To != calls[i].To {
			t.Errorf("Call %d: expected to %s, got %s", i, calls[i].To.Hex(), stored[i].To.Hex())
		}
	}
}

func TestSubmissionRepository_FindSubmissionById(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubmissionRepository(db)

	accountAddress := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	entryPointAddress := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

	calls := []domain.Call{
		{
			To:   common.HexToAddress("0x1234567890123456789012345678901234567890"),
			Data: hexutil.Bytes{0xa9, 0x05, 0x9c, 0xbb},
		},
	}

	created, err := repo.CreateSubmission(accountAddress, 11155111, entryPointAddress, calls)
	if err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}

	found, err := repo.FindSubmissionById(created.ID.String())
	if err != nil {
		t.Fatalf("FindSubmissionById failed: %v", err)
	}

	if found.ID != created.ID {
		t.Errorf("Expected ID %s, got %s", created.ID, found.ID)
	}

	// Unknown ID should return an error
	if _, err := repo.FindSubmissionById(uuid.New().String()); err == nil {
		t.Error("Expected error for unknown submission ID")
	}
}

func TestSubmissionRepository_MarkCompleted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubmissionRepository(db)

	accountAddress := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	entryPointAddress := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

	calls := []domain.Call{
		{
			To:   common.HexToAddress("0x1234567890123456789012345678901234567890"),
			Data: hexutil.Bytes{0xa9, 0x05, 0x9c, 0xbb},
		},
	}

	created, err := repo.CreateSubmission(accountAddress, 11155111, entryPointAddress, calls)
	if err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}

	result := &domain.SubmissionResult{
		UserOpHash:            common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111"),
		TxHash:                common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222"),
		Success:               true,
		AuthorizationAttached: true,
	}

	if err := repo.MarkSubmissionCompleted(created.ID.String(), result); err != nil {
		t.Fatalf("MarkSubmissionCompleted failed: %v", err)
	}

	found, err := repo.FindSubmissionById(created.ID.String())
	if err != nil {
		t.Fatalf("FindSubmissionById failed: %v", err)
	}

	if found.Status != domain.SubmissionStatusCompleted {
		t.Errorf("Expected status %s, got %s", domain.SubmissionStatusCompleted, found.Status)
	}

	if found.UserOpHash != result.UserOpHash.Hex() {
		t.Errorf("Expected userOpHash %s, got %s", result.UserOpHash.Hex(), found.UserOpHash)
	}

	if !found.AuthorizationAttached {
		t.Error("Expected authorizationAttached to be true")
	}
}

func TestSubmissionRepository_MarkFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubmissionRepository(db)

	accountAddress := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	entryPointAddress := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

	calls := []domain.Call{
		{
			To:   common.HexToAddress("0x1234567890123456789012345678901234567890"),
			Data: hexutil.Bytes{0xa9, 0x05, 0x9c, 0xbb},
		},
	}

	created, err := repo.CreateSubmission(accountAddress, 11155111, entryPointAddress, calls)
	if err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}

	if err := repo.MarkSubmissionFailed(created.ID.String(), "EXECUTION_ERROR", "user operation reverted"); err != nil {
		t.Fatalf("MarkSubmissionFailed failed: %v", err)
	}

	found, err := repo.FindSubmissionById(created.ID.String())
	if err != nil {
		t.Fatalf("FindSubmissionById failed: %v", err)
	}

	if found.Status != domain.SubmissionStatusFailed {
		t.Errorf("Expected status %s, got %s", domain.SubmissionStatusFailed, found.Status)
	}

	if found.ErrorName != "EXECUTION_ERROR" {
		t.Errorf("Expected errorName EXECUTION_ERROR, got %s", found.ErrorName)
	}
}
