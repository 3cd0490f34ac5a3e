package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethaccount/delegation-demo/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type BalanceHandler struct {
	blockchainService *service.BlockchainService
	chainId           int64
	tokenAddress      common.Address
	accountAddress    common.Address
}

func NewBalanceHandler(blockchainService *service.BlockchainService, chainId int64, tokenAddress, accountAddress common.Address) *BalanceHandler {
	return &BalanceHandler{
		blockchainService: blockchainService,
		chainId:           chainId,
		tokenAddress:      tokenAddress,
		accountAddress:    accountAddress,
	}
}

func (h *BalanceHandler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("handler", "balance").Logger()
	return &l
}

// BalanceEntry is one owner's token balance in raw units.
type BalanceEntry struct {
	Owner   string `json:"owner"`
	Balance string `json:"balance"`
}

// BalancesResponse represents the response for balance queries
type BalancesResponse struct {
	ChainID  int64          `json:"chainId"`
	Token    string         `json:"token"`
	Balances []BalanceEntry `json:"balances"`
}

// GetBalances handles GET /balances. Without an owners query parameter it
// returns the dispatching account's balance; with owners=0x..,0x.. it fans
// out over the listed addresses.
func (h *BalanceHandler) GetBalances(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "GetBalances").Logger()

	owners := []common.Address{h.accountAddress}
	if raw := c.Query("owners"); raw != "" {
		owners = owners[:0]
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if !common.IsHexAddress(part) {
				respondWithError(c, domain.NewError(
					domain.ErrorCodeParameterInvalid,
					errors.New("invalid owner address: "+part),
					domain.WithMsg("Invalid owner address"),
				))
				return
			}
			owners = append(owners, common.HexToAddress(part))
		}
	}

	balances, err := h.blockchainService.GetTokenBalances(c.Request.Context(), h.chainId, h.tokenAddress, owners)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read balances")
		respondWithError(c, domain.NewError(domain.ErrorCodeRemoteProcess, err, domain.WithMsg("Failed to read token balances")))
		return
	}

	entries := make([]BalanceEntry, len(balances))
	for i, balance := range balances {
		entries[i] = BalanceEntry{
			Owner:   balance.Owner.Hex(),
			Balance: balance.Balance.String(),
		}
	}

	respondWithSuccess(c, BalancesResponse{
		ChainID:  h.chainId,
		Token:    h.tokenAddress.Hex(),
		Balances: entries,
	})
}
