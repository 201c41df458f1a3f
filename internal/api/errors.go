package api

import (
	"errors"
	"net/http"

	"erp-service/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// writeError maps a service error onto a status code and JSON body.
func writeError(c *gin.Context, err error) {
	var approvalErr *apperrors.ApprovalError
	if errors.As(err, &approvalErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":         approvalErr.Error(),
			"code":          "partially_applied",
			"stage":         approvalErr.Stage,
			"order_number":  approvalErr.OrderNumber,
			"applied_lines": approvalErr.AppliedLines,
		})
		return
	}

	var postingErr *apperrors.PostingError
	if errors.As(err, &postingErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":         postingErr.Error(),
			"code":          "partially_applied",
			"stage":         apperrors.StageJournal,
			"reference":     postingErr.Reference,
			"applied_lines": []apperrors.AppliedLine{},
		})
		return
	}

	var stockErr *apperrors.InsufficientStockError
	if errors.As(err, &stockErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      err.Error(),
			"code":       "insufficient_stock",
			"product_id": stockErr.ProductID,
			"product":    stockErr.ProductName,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
		return
	}

	status, code := classify(err)
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  code,
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, apperrors.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, apperrors.ErrUnknownAccount):
		return http.StatusInternalServerError, "unknown_account"
	case errors.Is(err, apperrors.ErrUnbalancedEntry):
		return http.StatusInternalServerError, "unbalanced_entry"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
