// services/currency-conversion/internal/handler/currency_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
	"globalpay/services/currency-conversion/internal/service"
	"globalpay/shared/pkg/middleware"
)

const IdempotencyHeader = "Idempotency-Key"

type CurrencyHandler struct {
	quotes      *service.QuoteManager
	engine      *service.ConversionEngine
	idempotency *service.IdempotencyCache
	logger      *zap.Logger
	now         func() time.Time
}

// NewCurrencyHandler creates the FX handler. idempotency may be nil.
func NewCurrencyHandler(quotes *service.QuoteManager, engine *service.ConversionEngine, idempotency *service.IdempotencyCache, logger *zap.Logger) *CurrencyHandler {
	return &CurrencyHandler{
		quotes:      quotes,
		engine:      engine,
		idempotency: idempotency,
		logger:      logger,
		now:         time.Now,
	}
}

func (h *CurrencyHandler) GetQuote(c *gin.Context) {
	quote, err := h.quotes.GetOrRefreshQuote(c.Request.Context(), c.Query("quoteID"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.NewQuoteResponse(quote, h.now()))
}

func (h *CurrencyHandler) ConvertCurrency(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authorized"})
		return
	}

	var req models.ConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.RequestID = middleware.GetRequestID(c)

	ctx := c.Request.Context()
	key := c.GetHeader(IdempotencyHeader)
	reserved := false
	if key != "" && h.idempotency != nil {
		cached, err := h.idempotency.Begin(ctx, userID, key, req.Fingerprint())
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		if cached != nil {
			c.Header("Idempotent-Replayed", "true")
			c.JSON(http.StatusOK, cached)
			return
		}
		reserved = true
	}

	result, err := h.engine.Convert(ctx, userID, &req)
	if err != nil {
		// a credit-pending conversion keeps its reservation so retries cannot debit again
		if reserved && !errors.Is(err, apperrors.ErrCreditPending) {
			h.idempotency.Release(context.WithoutCancel(ctx), userID, key)
		}
		respondError(c, h.logger, err)
		return
	}

	if reserved {
		h.idempotency.Complete(context.WithoutCancel(ctx), userID, key, req.Fingerprint(), result)
	}

	c.JSON(http.StatusOK, result)
}

func (h *CurrencyHandler) GetRateHistory(c *gin.Context) {
	from, err := models.ParseCurrency(c.Param("from"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	to, err := models.ParseCurrency(c.Param("to"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days < 1 || days > 365 {
		days = 30
	}

	rates, err := h.quotes.GetHistoricalRates(c.Request.Context(), from, to, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rates": rates})
}

func (h *CurrencyHandler) GetSupportedCurrencies(c *gin.Context) {
	pairs := make([]string, 0, len(h.quotes.Pairs()))
	for _, p := range h.quotes.Pairs() {
		pairs = append(pairs, p.String())
	}
	c.JSON(http.StatusOK, gin.H{
		"currencies": models.SupportedCurrencies,
		"pairs":      pairs,
	})
}
