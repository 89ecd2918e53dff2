package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renowix/surveyor-api/config"
	"github.com/renowix/surveyor-api/services"
)

// RewriteRequest represents the request body for polishing quotation text
type RewriteRequest struct {
	Text string `json:"text" binding:"required"`
}

// RewriteText handles POST /api/v1/rewrite - runs free-form quotation text
// (terms, descriptions) through the rewrite service. The operation is
// fail-silent: when the service is down the original text comes back
// unchanged, never an error.
func RewriteText(c *gin.Context) {
	var req RewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Text is required",
				"details": err.Error(),
			},
		})
		return
	}

	rewriteService := services.NewRewriteService(config.GetConfig())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"text": rewriteService.RewriteOrFallback(req.Text),
		},
	})
}
