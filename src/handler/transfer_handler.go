package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethaccount/delegation-demo/erc20"
	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethaccount/delegation-demo/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransferHandlerConfig pins the chain, token and account the service
// dispatches for.
type TransferHandlerConfig struct {
	ChainID        int64
	TokenAddress   common.Address
	AccountAddress common.Address
	EntryPoint     common.Address
}

type TransferHandler struct {
	submissionService *service.SubmissionService
	blockchainService *service.BlockchainService
	config            TransferHandlerConfig
}

func NewTransferHandler(submissionService *service.SubmissionService, blockchainService *service.BlockchainService, config TransferHandlerConfig) *TransferHandler {
	return &TransferHandler{
		submissionService: submissionService,
		blockchainService: blockchainService,
		config:            config,
	}
}

func (h *TransferHandler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("handler", "transfer").Logger()
	return &l
}

// TransferItem is one recipient and a human-unit token amount.
type TransferItem struct {
	To     string          `json:"to" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// CreateTransfersRequest represents the request payload for token transfers
type CreateTransfersRequest struct {
	Transfers []TransferItem `json:"transfers" binding:"required,min=1,dive"`
}

// CreateTransfersResponse represents the response for a registered transfer batch
type CreateTransfersResponse struct {
	SubmissionID string `json:"submissionId"`
	ChainID      int64  `json:"chainId"`
	Token        string `json:"token"`
	Count        int    `json:"count"`
	Message      string `json:"message"`
}

// CreateTransfers handles POST /transfers: it converts the requested
// amounts to token units, encodes one transfer call per recipient and
// queues the batch as a single submission.
func (h *TransferHandler) CreateTransfers(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "CreateTransfers").Logger()

	var req CreateTransfersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error().Err(err).Msg("invalid request payload")
		respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Invalid request payload")))
		return
	}

	decimals, err := h.blockchainService.GetTokenDecimals(c.Request.Context(), h.config.ChainID, h.config.TokenAddress)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read token decimals")
		respondWithError(c, domain.NewError(domain.ErrorCodeRemoteProcess, err, domain.WithMsg("Failed to read token metadata")))
		return
	}

	calls := make([]domain.Call, 0, len(req.Transfers))
	for i, transfer := range req.Transfers {
		if !common.IsHexAddress(transfer.To) {
			respondWithError(c, domain.NewError(
				domain.ErrorCodeParameterInvalid,
				fmt.Errorf("transfer %d: invalid recipient address %q", i, transfer.To),
				domain.WithMsg("Invalid recipient address"),
			))
			return
		}
		if transfer.Amount.IsNegative() || transfer.Amount.IsZero() {
			respondWithError(c, domain.NewError(
				domain.ErrorCodeParameterInvalid,
				fmt.Errorf("transfer %d: amount must be positive", i),
				domain.WithMsg("Amount must be positive"),
			))
			return
		}

		units := transfer.Amount.Shift(int32(decimals))
		if !units.IsInteger() {
			respondWithError(c, domain.NewError(
				domain.ErrorCodeParameterInvalid,
				fmt.Errorf("transfer %d: amount %s has more than %d decimals", i, transfer.Amount, decimals),
				domain.WithMsg("Amount has too many decimal places"),
			))
			return
		}

		calldata, err := erc20.PackTransfer(common.HexToAddress(transfer.To), units.BigInt())
		if err != nil {
			respondWithError(c, domain.NewError(domain.ErrorCodeInternalProcess, err, domain.WithMsg("Failed to encode transfer")))
			return
		}

		calls = append(calls, domain.Call{
			To:    h.config.TokenAddress,
			Value: (*hexutil.Big)(nil),
			Data:  hexutil.Bytes(calldata),
		})
	}

	submission, err := h.submissionService.RegisterSubmission(
		c.Request.Context(),
		h.config.AccountAddress,
		h.config.ChainID,
		h.config.EntryPoint,
		calls,
	)
	if err != nil {
		logger.Error().Err(err).Msg("failed to register submission")
		respondWithError(c, err)
		return
	}

	logger.Info().
		Str("submission_id", submission.ID.String()).
		Int("transfer_count", len(calls)).
		Msg("transfers queued")

	respondWithSuccessAndStatus(c, http.StatusCreated, CreateTransfersResponse{
		SubmissionID: submission.ID.String(),
		ChainID:      h.config.ChainID,
		Token:        h.config.TokenAddress.Hex(),
		Count:        len(calls),
		Message:      "Transfers queued for dispatch",
	})
}

// TransferStatusResponse is the status poll payload.
type TransferStatusResponse struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"`
	UserOpHash   string `json:"userOpHash,omitempty"`
	TxHash       string `json:"txHash,omitempty"`
	Error        string `json:"error,omitempty"`
}

// GetTransferStatus handles GET /transfers/:id
func (h *TransferHandler) GetTransferStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Invalid submission id")))
		return
	}

	status, err := h.submissionService.GetSubmissionStatus(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	response := TransferStatusResponse{
		SubmissionID: status.SubmissionID.String(),
		Status:       string(status.Status),
		Error:        status.Error,
	}
	if status.UserOpHash != (common.Hash{}) {
		response.UserOpHash = status.UserOpHash.Hex()
	}
	if status.TxHash != (common.Hash{}) {
		response.TxHash = status.TxHash.Hex()
	}

	respondWithSuccess(c, response)
}
