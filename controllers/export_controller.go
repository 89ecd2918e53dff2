package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renowix/surveyor-api/config"
	"github.com/renowix/surveyor-api/middleware"
	"github.com/renowix/surveyor-api/models"
	"github.com/renowix/surveyor-api/services"
	"github.com/renowix/surveyor-api/utils"
)

// ExportProject handles GET /api/v1/projects/:id/export - the flattened
// line-item export. ?format=csv streams a CSV download; the default is the
// row list as JSON. Export reads the stored cost snapshots, it never
// recomputes them.
func ExportProject(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	db := config.GetDB()
	var project models.Project
	if err := db.First(&project, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROJECT_NOT_FOUND",
				"message": "Project not found",
			},
		})
		return
	}

	if !canReadProject(db, auth0ID, &project) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have access to this project",
			},
		})
		return
	}

	rows := utils.FlattenProject(&project)

	if c.Query("format") == "csv" {
		csvBytes, err := utils.WriteCSV(rows)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "EXPORT_ERROR",
					"message": "Failed to build CSV export",
				},
			})
			return
		}
		filename := fmt.Sprintf("quotation-%d.csv", project.ID)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Data(http.StatusOK, "text/csv", csvBytes)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"rows":  rows,
			"total": project.TotalCost(),
		},
	})
}

// ArchiveExport handles POST /api/v1/projects/:id/export/archive - writes
// the CSV export to S3 and returns a presigned download link
func ArchiveExport(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	db := config.GetDB()
	var project models.Project
	if err := db.First(&project, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROJECT_NOT_FOUND",
				"message": "Project not found",
			},
		})
		return
	}

	if !canReadProject(db, auth0ID, &project) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have access to this project",
			},
		})
		return
	}

	csvBytes, err := utils.WriteCSV(utils.FlattenProject(&project))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "EXPORT_ERROR",
				"message": "Failed to build CSV export",
			},
		})
		return
	}

	s3Service := services.GetS3Service()
	if s3Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_UNAVAILABLE",
				"message": "Export archival is not configured",
			},
		})
		return
	}

	key, err := s3Service.UploadExport(project.ID, csvBytes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_ERROR",
				"message": "Failed to archive export",
				"details": err.Error(),
			},
		})
		return
	}

	url, err := s3Service.GetPresignedURL(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_ERROR",
				"message": "Failed to create download link",
				"details": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"key": key,
			"url": url,
		},
	})
}
