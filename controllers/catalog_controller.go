package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renowix/surveyor-api/catalog"
)

// GetCatalog handles GET /api/v1/catalog - the fixed service catalog.
// The catalog ships with the binary, so any signed-in role may read it.
func GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    catalog.Categories(),
	})
}
