package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/renowix/surveyor-api/calc"
	"github.com/renowix/surveyor-api/config"
	"github.com/renowix/surveyor-api/metrics"
	"github.com/renowix/surveyor-api/middleware"
	"github.com/renowix/surveyor-api/models"
	"github.com/renowix/surveyor-api/stream"
)

// ProjectRequest represents the full content payload for creating or
// overwriting a quotation. Costs are re-snapshotted server-side so the
// stored invariant cost == netArea * rate holds at the moment of save.
type ProjectRequest struct {
	Date     string             `json:"date"`
	Client   models.Client      `json:"client"`
	Services models.ServiceList `json:"services"`
	Terms    string             `json:"terms"`
}

// AssignRequest represents the admin convert & assign payload
type AssignRequest struct {
	SupervisorUID string `json:"supervisor_uid" binding:"required"`
}

// snapshotCosts re-applies the cost invariant to every measurement item at
// save time. Geometry is left untouched: the stored netArea is the value
// measured by the client, never re-derived later.
func snapshotCosts(services models.ServiceList) {
	for i := range services {
		for j := range services[i].Items {
			item := &services[i].Items[j]
			item.Cost = calc.Cost(item.NetArea, item.Rate)
		}
	}
}

// CreateProject handles POST /api/v1/projects - saves a new quotation
// (surveyors only, i.e. supervisor-role profiles)
func CreateProject(c *gin.Context) {
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

	if profile.Role != models.RoleSupervisor {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only surveyors can create quotations",
			},
		})
		return
	}

	var req ProjectRequest
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

	// A non-empty client name is the only intake requirement
	if req.Client.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Client name is required",
			},
		})
		return
	}

	if req.Services == nil {
		req.Services = models.ServiceList{}
	}
	snapshotCosts(req.Services)

	project := models.Project{
		Date:         req.Date,
		Client:       req.Client,
		Services:     req.Services,
		Terms:        req.Terms,
		SurveyorID:   profile.UID,
		SurveyorName: profile.Name,
		Status:       models.StatusQuotation,
	}

	if err := db.Create(&project).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to save project",
				"details": err.Error(),
			},
		})
		return
	}

	metrics.Get().ProjectSaves.WithLabelValues("create").Inc()
	if hub := stream.GetHub(); hub != nil {
		hub.NotifyProjectsChanged(c.Request.Context())
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    project,
	})
}

// UpdateProject handles PUT /api/v1/projects/:id - full content overwrite
// of an existing quotation, last write wins. The lock guard runs against
// the freshly loaded row on every call.
func UpdateProject(c *gin.Context) {
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

	if rejected := rejectIfNotEditable(c, &project, auth0ID); rejected {
		return
	}

	var req ProjectRequest
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

	if req.Client.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Client name is required",
			},
		})
		return
	}

	if req.Services == nil {
		req.Services = models.ServiceList{}
	}
	snapshotCosts(req.Services)

	// Full content overwrite; ownership and status columns stay as they are
	updates := map[string]interface{}{
		"date":           req.Date,
		"client_name":    req.Client.Name,
		"client_address": req.Client.Address,
		"services":       req.Services,
		"terms":          req.Terms,
	}
	if err := db.Model(&project).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update project",
				"details": err.Error(),
			},
		})
		return
	}

	project.Date = req.Date
	project.Client = req.Client
	project.Services = req.Services
	project.Terms = req.Terms

	metrics.Get().ProjectSaves.WithLabelValues("update").Inc()
	if hub := stream.GetHub(); hub != nil {
		hub.NotifyProjectsChanged(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    project,
	})
}

// DeleteProject handles DELETE /api/v1/projects/:id - available only to the
// owning surveyor while the project is unlocked
func DeleteProject(c *gin.Context) {
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

	if rejected := rejectIfNotEditable(c, &project, auth0ID); rejected {
		return
	}

	if err := db.Delete(&project).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to delete project",
				"details": err.Error(),
			},
		})
		return
	}

	metrics.Get().ProjectSaves.WithLabelValues("delete").Inc()
	if hub := stream.GetHub(); hub != nil {
		hub.NotifyProjectsChanged(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"deleted": project.ID},
	})
}

// GetProject handles GET /api/v1/projects/:id - readable by the owning
// surveyor, the assigned supervisor and the admin
func GetProject(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    project,
	})
}

// GetProjects handles GET /api/v1/projects - the role-scoped list. Admin
// sees the full inbox; a supervisor sees their authored history, which
// deliberately includes projects locked after authoring.
func GetProjects(c *gin.Context) {
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

	query := db.Order("created_at DESC")
	if profile.Role != models.RoleAdmin {
		query = query.Where("surveyor_id = ?", auth0ID)
	}

	var projects []models.Project
	if err := query.Find(&projects).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load projects",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    projects,
	})
}

// GetAssignedProjects handles GET /api/v1/projects/assigned - the
// supervisor's assigned-tasks view: locked projects assigned to them
func GetAssignedProjects(c *gin.Context) {
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
	var projects []models.Project
	if err := db.
		Where("assigned_to = ? AND status = ?", auth0ID, models.StatusProject).
		Order("created_at DESC").
		Find(&projects).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load assigned projects",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    projects,
	})
}

// AssignProject handles POST /api/v1/projects/:id/assign - the admin-only
// convert & assign operation. It writes exactly status, assigned_to and
// updated_at; content columns are never part of the update.
func AssignProject(c *gin.Context) {
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
				"message": "Only the admin can convert and assign projects",
			},
		})
		return
	}

	var req AssignRequest
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

	var supervisor models.Profile
	if err := db.Where("uid = ? AND role = ?", req.SupervisorUID, models.RoleSupervisor).
		First(&supervisor).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SUPERVISOR_NOT_FOUND",
				"message": "The chosen supervisor does not exist",
			},
		})
		return
	}

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

	if project.Status != models.StatusQuotation {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROJECT_LOCKED",
				"message": "Project has already been converted and assigned",
			},
		})
		return
	}

	if err := db.Model(&project).Updates(models.AssignmentUpdate(supervisor.UID)).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to assign project",
				"details": err.Error(),
			},
		})
		return
	}

	metrics.Get().Conversions.Inc()
	if hub := stream.GetHub(); hub != nil {
		hub.NotifyProjectsChanged(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    project,
	})
}

// rejectIfNotEditable applies the write guard and writes the rejection
// response. The guard is evaluated against the row loaded for this request,
// never a cached status.
func rejectIfNotEditable(c *gin.Context, project *models.Project, auth0ID string) bool {
	err := project.EnsureEditable(auth0ID)
	if err == nil {
		return false
	}

	if err == models.ErrProjectLocked {
		metrics.Get().LockedWriteRejects.Inc()
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROJECT_LOCKED",
				"message": "Project is locked; its content can no longer be modified",
			},
		})
		return true
	}

	c.JSON(http.StatusForbidden, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "FORBIDDEN",
			"message": "Only the owning surveyor can modify this quotation",
		},
	})
	return true
}

// canReadProject checks read access: the owning surveyor, the assigned
// supervisor, or the admin.
func canReadProject(db *gorm.DB, auth0ID string, project *models.Project) bool {
	if project.SurveyorID == auth0ID {
		return true
	}
	if project.AssignedTo != nil && *project.AssignedTo == auth0ID {
		return true
	}

	var caller models.Profile
	if err := db.Where("uid = ?", auth0ID).First(&caller).Error; err != nil {
		return false
	}
	return caller.Role == models.RoleAdmin
}
