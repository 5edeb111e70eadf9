package restapi

import (
	"net/http"
	"strconv"
	"strings"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/app/service"
	"borrow_engine/internal/apperrors"
	"borrow_engine/internal/domain/entity"
	"borrow_engine/internal/infrastructure/configloader"

	"github.com/gin-gonic/gin"
)

// APIError is the error envelope returned on failed requests.
type APIError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// APISnapshotResponse is the envelope for borrowing-power responses.
type APISnapshotResponse struct {
	Data          service.PolledSnapshot `json:"data"`
	StatusMessage string                 `json:"status_message"`
}

// APIMarketEntry is one market in the markets listing.
type APIMarketEntry struct {
	AssetSymbol      string  `json:"assetSymbol"`
	PTokenAddress    string  `json:"pTokenAddress"`
	Decimals         uint8   `json:"decimals"`
	CollateralFactor float64 `json:"collateralFactor"`
	HasMarket        bool    `json:"hasMarket"`
}

// EngineHandler serves the borrowing-power API.
type EngineHandler struct {
	poller           *service.SnapshotPoller
	validator        port.BorrowValidator
	liquidityService port.LiquidityService
	registry         port.RegistryProvider
	chainProvider    port.ChainDefinitionProvider
	logger           port.Logger
	cfg              *configloader.Config
}

// NewEngineHandler creates a new EngineHandler.
func NewEngineHandler(
	poller *service.SnapshotPoller,
	validator port.BorrowValidator,
	liquidityService port.LiquidityService,
	registry port.RegistryProvider,
	chainProvider port.ChainDefinitionProvider,
	logger port.Logger,
	cfg *configloader.Config,
) *EngineHandler {
	return &EngineHandler{
		poller:           poller,
		validator:        validator,
		liquidityService: liquidityService,
		registry:         registry,
		chainProvider:    chainProvider,
		logger:           logger,
		cfg:              cfg,
	}
}

// GetBorrowingPowerHandler returns the borrowing-power snapshot for one
// account. The cached snapshot is served when the connection is watched;
// pass fresh=true to force a recomputation.
//
//	GET /api/v1/accounts/:address/borrowing-power?chainId=1&fresh=false
func (h *EngineHandler) GetBorrowingPowerHandler(c *gin.Context) {
	conn, ok := h.connectionFromRequest(c)
	if !ok {
		return
	}

	fresh := c.Query("fresh") == "true"
	if !fresh {
		if polled, found := h.poller.Latest(conn); found {
			c.JSON(http.StatusOK, APISnapshotResponse{Data: polled, StatusMessage: snapshotStatus(polled)})
			return
		}
	}

	polled, err := h.poller.Refresh(c.Request.Context(), conn)
	if err != nil {
		h.logger.Error("Snapshot computation failed", "connection", conn.Key(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": APIError{Reason: "upstream_failure", Message: err.Error()}})
		return
	}
	c.JSON(http.StatusOK, APISnapshotResponse{Data: polled, StatusMessage: snapshotStatus(polled)})
}

// ValidateBorrowRequest is the body of a borrow validation request.
type ValidateBorrowRequest struct {
	ChainID     uint64  `json:"chainId" binding:"required"`
	AssetSymbol string  `json:"assetSymbol" binding:"required"`
	Amount      float64 `json:"amount"`
}

// ValidateBorrowHandler runs the pre-flight checks for a proposed borrow.
//
//	POST /api/v1/accounts/:address/validate-borrow
func (h *EngineHandler) ValidateBorrowHandler(c *gin.Context) {
	address, ok := h.addressFromPath(c)
	if !ok {
		return
	}

	var req ValidateBorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": APIError{Reason: "bad_request", Message: err.Error()}})
		return
	}

	conn := entity.ConnectionContext{Address: address, ChainID: req.ChainID}
	err := h.validator.ValidateBorrow(c.Request.Context(), conn, req.AssetSymbol, req.Amount)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"admissible": true}, "status_message": "Borrow is admissible."})
		return
	}

	status, apiErr := toAPIError(err)
	c.JSON(status, gin.H{"data": gin.H{"admissible": false}, "error": apiErr})
}

// GetMaxBorrowableHandler returns the largest admissible borrow for one
// asset, bounded by account capacity and market cash.
//
//	GET /api/v1/accounts/:address/max-borrowable/:asset?chainId=1
func (h *EngineHandler) GetMaxBorrowableHandler(c *gin.Context) {
	conn, ok := h.connectionFromRequest(c)
	if !ok {
		return
	}
	assetSymbol := strings.ToUpper(c.Param("asset"))

	maxAmount, err := h.validator.MaxBorrowable(c.Request.Context(), conn, assetSymbol)
	if err != nil {
		status, apiErr := toAPIError(err)
		c.JSON(status, gin.H{"error": apiErr})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"assetSymbol": assetSymbol, "maxBorrowable": maxAmount}})
}

// WatchHandler registers the connection with the snapshot poller.
//
//	POST /api/v1/accounts/:address/watch?chainId=1
func (h *EngineHandler) WatchHandler(c *gin.Context) {
	conn, ok := h.connectionFromRequest(c)
	if !ok {
		return
	}
	h.poller.Watch(conn)
	c.JSON(http.StatusAccepted, gin.H{"status_message": "Connection is being watched."})
}

// UnwatchHandler removes the connection from the snapshot poller.
//
//	DELETE /api/v1/accounts/:address/watch?chainId=1
func (h *EngineHandler) UnwatchHandler(c *gin.Context) {
	conn, ok := h.connectionFromRequest(c)
	if !ok {
		return
	}
	h.poller.Unwatch(conn)
	c.JSON(http.StatusOK, gin.H{"status_message": "Connection is no longer watched."})
}

// RefreshHandler forces an immediate snapshot refresh, rate limited.
//
//	POST /api/v1/accounts/:address/refresh?chainId=1
func (h *EngineHandler) RefreshHandler(c *gin.Context) {
	conn, ok := h.connectionFromRequest(c)
	if !ok {
		return
	}

	polled, err := h.poller.Refresh(c.Request.Context(), conn)
	if err != nil {
		h.logger.Error("Forced refresh failed", "connection", conn.Key(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": APIError{Reason: "upstream_failure", Message: err.Error()}})
		return
	}
	c.JSON(http.StatusOK, APISnapshotResponse{Data: polled, StatusMessage: snapshotStatus(polled)})
}

// GetMarketsHandler lists the registered markets for a chain.
//
//	GET /api/v1/markets?chainId=1
func (h *EngineHandler) GetMarketsHandler(c *gin.Context) {
	chainID, ok := h.chainIDFromQuery(c)
	if !ok {
		return
	}

	assets := h.registry.AssetsForChain(chainID)
	markets := make([]APIMarketEntry, 0, len(assets))
	for _, asset := range assets {
		markets = append(markets, APIMarketEntry{
			AssetSymbol:      asset.Symbol,
			PTokenAddress:    asset.PTokenAddress,
			Decimals:         asset.Decimals,
			CollateralFactor: asset.CollateralFactor,
			HasMarket:        asset.HasMarket,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"chainId": chainID, "markets": markets}})
}

// GetMarketLiquidityHandler returns the available cash for one market.
//
//	GET /api/v1/markets/:asset/liquidity?chainId=1
func (h *EngineHandler) GetMarketLiquidityHandler(c *gin.Context) {
	chainID, ok := h.chainIDFromQuery(c)
	if !ok {
		return
	}
	assetSymbol := strings.ToUpper(c.Param("asset"))

	liquidity, err := h.liquidityService.MarketLiquidity(c.Request.Context(), chainID, assetSymbol)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": APIError{Reason: "not_found", Message: err.Error()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": liquidity})
}

// GetChainsHandler lists the active chain definitions along with the
// thresholds the engine classifies snapshots with, so clients render risk
// tiers consistently with the server.
//
//	GET /api/v1/chains
func (h *EngineHandler) GetChainsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"chains": h.chainProvider.GetAllChainDefinitions(),
		"thresholds": gin.H{
			"moderateRiskAbove":      h.cfg.Thresholds.ModerateRiskAbove,
			"highRiskAbove":          h.cfg.Thresholds.HighRiskAbove,
			"borrowUtilizationGuard": h.cfg.Thresholds.BorrowUtilizationGuard,
		},
	}})
}

// HealthzHandler reports liveness.
func (h *EngineHandler) HealthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *EngineHandler) addressFromPath(c *gin.Context) (string, bool) {
	address := c.Param("address")
	if !(strings.HasPrefix(address, "0x") && len(address) == 42) {
		c.JSON(http.StatusBadRequest, gin.H{"error": APIError{Reason: "bad_request", Message: "address must be a 0x-prefixed 20-byte hex string"}})
		return "", false
	}
	return address, true
}

func (h *EngineHandler) chainIDFromQuery(c *gin.Context) (uint64, bool) {
	raw := c.Query("chainId")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": APIError{Reason: "bad_request", Message: "chainId query parameter is required"}})
		return 0, false
	}
	chainID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": APIError{Reason: "bad_request", Message: "chainId must be a decimal integer"}})
		return 0, false
	}
	if _, ok := h.chainProvider.GetChainDefinitionByID(chainID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": APIError{Reason: "bad_request", Message: "chain " + raw + " is not active"}})
		return 0, false
	}
	return chainID, true
}

func (h *EngineHandler) connectionFromRequest(c *gin.Context) (entity.ConnectionContext, bool) {
	address, ok := h.addressFromPath(c)
	if !ok {
		return entity.ConnectionContext{}, false
	}
	chainID, ok := h.chainIDFromQuery(c)
	if !ok {
		return entity.ConnectionContext{}, false
	}
	return entity.ConnectionContext{Address: address, ChainID: chainID}, true
}

// toAPIError maps a validation error to an HTTP status and envelope. Typed
// rejections are client-visible outcomes, not server failures; they come
// back as 422 so callers can distinguish them from malformed requests.
func toAPIError(err error) (int, APIError) {
	appErr, ok := apperrors.As(err)
	if !ok {
		return http.StatusInternalServerError, APIError{Reason: "internal", Message: err.Error()}
	}
	switch appErr.Code {
	case apperrors.CodeUsage:
		return http.StatusBadRequest, APIError{Reason: appErr.Code.Reason(), Message: appErr.Message}
	case apperrors.CodeUnknownAsset, apperrors.CodeNoMarket:
		return http.StatusNotFound, APIError{Reason: appErr.Code.Reason(), Message: appErr.Message}
	case apperrors.CodeInsufficientCapacity, apperrors.CodeInsufficientLiquidity, apperrors.CodeUtilizationGuard:
		return http.StatusUnprocessableEntity, APIError{Reason: appErr.Code.Reason(), Message: appErr.Message}
	default:
		return http.StatusInternalServerError, APIError{Reason: appErr.Code.Reason(), Message: appErr.Error()}
	}
}

func snapshotStatus(polled service.PolledSnapshot) string {
	switch {
	case !polled.Snapshot.DataComplete:
		return "Snapshot computed with incomplete data. Some markets were excluded after read failures."
	case polled.Snapshot.Degraded:
		return "Snapshot computed with fallback prices."
	default:
		return "Snapshot computed successfully."
	}
}
