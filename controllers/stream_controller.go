package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renowix/surveyor-api/config"
	"github.com/renowix/surveyor-api/middleware"
	"github.com/renowix/surveyor-api/models"
	"github.com/renowix/surveyor-api/stream"
)

// StreamProjects handles GET /api/v1/stream/projects - the live project
// view as server-sent events. The admin receives the inbox (every project);
// a supervisor receives their authored history, or the assigned-tasks view
// with ?view=assigned. Every event carries a full replacement snapshot.
func StreamProjects(c *gin.Context) {
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

	query := stream.Query{Kind: stream.KindSupervisorHistory, UID: auth0ID}
	if profile.Role == models.RoleAdmin {
		query = stream.Query{Kind: stream.KindAdminInbox}
	} else if c.Query("view") == "assigned" {
		query = stream.Query{Kind: stream.KindSupervisorAssigned, UID: auth0ID}
	}

	serveSubscription(c, profile.Role, query)
}

// StreamRoster handles GET /api/v1/stream/roster - the live supervisor
// roster, admin only
func StreamRoster(c *gin.Context) {
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

	serveSubscription(c, profile.Role, stream.Query{Kind: stream.KindAdminRoster})
}

// serveSubscription subscribes against the hub and pumps snapshots to the
// client until the connection closes. Subscription errors go out as error
// events on the same stream; they do not end it.
func serveSubscription(c *gin.Context, role string, query stream.Query) {
	hub := stream.GetHub()
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STREAM_UNAVAILABLE",
				"message": "Live updates are not available",
			},
		})
		return
	}

	sub, err := hub.Subscribe(role, query)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Your role cannot subscribe to this view",
			},
		})
		return
	}
	defer sub.Cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case snapshot, ok := <-sub.Snapshots():
			if !ok {
				return false
			}
			c.SSEvent("snapshot", snapshot)
			return true
		case err, ok := <-sub.Errors():
			if !ok {
				return false
			}
			c.SSEvent("error", gin.H{"message": err.Error()})
			return true
		}
	})
}
