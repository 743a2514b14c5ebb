// services/currency-conversion/internal/handler/account_handler.go
package handler

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
	"globalpay/services/currency-conversion/internal/service"
	"globalpay/shared/pkg/middleware"
)

type AccountHandler struct {
	ledger *service.Ledger
	logger *zap.Logger
}

func NewAccountHandler(ledger *service.Ledger, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{ledger: ledger, logger: logger}
}

func (h *AccountHandler) GetBalances(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authorized"})
		return
	}

	balances, err := h.ledger.GetBalances(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.NewBalancesResponse(balances))
}

func (h *AccountHandler) TopUp(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authorized"})
		return
	}

	var req models.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currency, err := models.ParseCurrency(req.Currency)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if math.IsInf(req.Amount, 0) || math.IsNaN(req.Amount) {
		respondError(c, h.logger, apperrors.ErrInvalidAmount)
		return
	}

	balances, err := h.ledger.Deposit(c.Request.Context(), userID, currency, decimal.NewFromFloat(req.Amount))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.NewBalancesResponse(balances))
}
