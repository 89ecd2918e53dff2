package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/renowix/surveyor-api/config"
	"github.com/renowix/surveyor-api/middleware"
	"github.com/renowix/surveyor-api/models"
	"github.com/renowix/surveyor-api/services"
	"github.com/renowix/surveyor-api/stream"
)

// UpdateProfileRequest represents the request body for completing a profile
type UpdateProfileRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateSession handles POST /api/v1/session - the sign-in bootstrap.
// It fetches the identity attributes from Auth0, derives the role from the
// email (never from anything client-supplied), ensures the profile document
// exists and returns the entry route.
func CreateSession(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user ID from token",
			},
		})
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_TOKEN",
				"message": "Access token not found",
			},
		})
		return
	}

	cfg := config.GetConfig()
	auth0Service := services.NewAuth0Service(cfg)
	userInfo, err := auth0Service.GetUserInfo(accessToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "AUTH0_ERROR",
				"message": "Failed to fetch user information from Auth0",
			},
		})
		return
	}

	if userInfo.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_EMAIL",
				"message": "Email not provided by Auth0",
			},
		})
		return
	}

	role := models.RoleForEmail(userInfo.Email, cfg.AdminEmail)
	db := config.GetDB()

	var profile models.Profile
	if role == models.RoleAdmin {
		// The admin profile is force-written on every login so the
		// access-control document is guaranteed to exist
		profile = models.Profile{
			UID:   auth0ID,
			Email: userInfo.Email,
			Name:  userInfo.Name,
			Role:  models.RoleAdmin,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}},
			UpdateAll: true,
		}).Create(&profile).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to write admin profile",
				},
			})
			return
		}
	} else {
		err := db.Where("uid = ?", auth0ID).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// First authenticated session: create in the pending-name state
			profile = models.Profile{
				UID:   auth0ID,
				Email: userInfo.Email,
				Role:  models.RoleSupervisor,
			}
			if err := db.Create(&profile).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "DATABASE_ERROR",
						"message": "Failed to create profile",
					},
				})
				return
			}
		} else if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to load profile",
				},
			})
			return
		}
	}

	if hub := stream.GetHub(); hub != nil {
		hub.NotifyProfilesChanged(c.Request.Context())
	}

	route := "dashboard"
	if profile.Role == models.RoleAdmin {
		route = "admin"
	} else if profile.IsPending() {
		route = "complete_profile"
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"profile": profile,
			"route":   route,
		},
	})
}

// UpdateProfile handles PATCH /api/v1/profile - completes a pending profile
func UpdateProfile(c *gin.Context) {
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

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	db := config.GetDB()
	var profile models.Profile
	if err := db.Where("uid = ?", auth0ID).First(&profile).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROFILE_NOT_FOUND",
				"message": "Profile not found. Please sign in first.",
			},
		})
		return
	}

	profile.Name = req.Name
	if err := db.Save(&profile).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update profile",
			},
		})
		return
	}

	if hub := stream.GetHub(); hub != nil {
		hub.NotifyProfilesChanged(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profile,
	})
}

// GetSupervisors handles GET /api/v1/supervisors - the admin roster
func GetSupervisors(c *gin.Context) {
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
	var caller models.Profile
	if err := db.Where("uid = ?", auth0ID).First(&caller).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROFILE_NOT_FOUND",
				"message": "Profile not found. Please sign in first.",
			},
		})
		return
	}

	if caller.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only the admin can view the supervisor roster",
			},
		})
		return
	}

	var supervisors []models.Profile
	if err := db.Where("role = ?", models.RoleSupervisor).
		Order("created_at DESC").
		Find(&supervisors).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load supervisors",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    supervisors,
	})
}
