package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"commerce-ledger/internal/service"
	"commerce-ledger/internal/tenant"
	"commerce-ledger/internal/util"

	"github.com/gin-gonic/gin"
)

const tenantHeader = "X-Tenant-ID"

// tenantMiddleware resolves the calling tenant from the request header and
// stores it on the request context. Every route under /api/v1 requires it.
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(tenantHeader)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "missing " + tenantHeader + " header",
			})
			return
		}

		ctx := tenant.NewContext(c.Request.Context(), tenant.Context{TenantID: tenantID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// respondError maps service errors onto HTTP statuses. Validation and stock
// failures are the caller's fault; everything unrecognized is a 500.
func respondError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		notFoundErr   *service.NotFoundError
		stockErr      *service.InsufficientStockError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     stockErr.Error(),
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.Is(err, tenant.ErrMissingTenant):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
