package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/renowix/surveyor-api/config"
	"github.com/renowix/surveyor-api/controllers"
	"github.com/renowix/surveyor-api/middleware"
	"github.com/renowix/surveyor-api/models"
	"github.com/renowix/surveyor-api/services"
	"github.com/renowix/surveyor-api/stream"
)

func main() {
	log.Println("Starting Renowix Surveyor API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(&models.Profile{}, &models.Project{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Redis backs the cross-replica change notifications. Without it the
	// server still runs; writes then refresh local subscribers only.
	var notifier stream.Notifier
	if err := config.ConnectRedis(); err != nil {
		log.Printf("Redis unavailable, live updates stay process-local: %v", err)
	} else {
		notifier = stream.NewRedisNotifier(config.GetRedis())
	}

	hub := stream.NewHub(db, notifier)
	stream.SetHub(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Printf("Subscription hub stopped: %v", err)
		}
	}()

	// Export archival is optional; the archive endpoint reports storage as
	// unavailable when the bucket is not configured
	if cfg.AWSS3Bucket != "" {
		if _, err := services.InitS3Service(); err != nil {
			log.Printf("Failed to initialize S3 service: %v", err)
		}
	}

	// Initialize Gin router
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Database status endpoint
		v1.GET("/database/status", databaseStatus)

		// Everything else requires a valid token
		authorized := v1.Group("")
		authorized.Use(middleware.EnsureValidToken(cfg))
		{
			authorized.POST("/session", controllers.CreateSession)
			authorized.PATCH("/profile", controllers.UpdateProfile)
			authorized.GET("/supervisors", controllers.GetSupervisors)

			authorized.GET("/catalog", controllers.GetCatalog)

			authorized.POST("/projects", controllers.CreateProject)
			authorized.GET("/projects", controllers.GetProjects)
			authorized.GET("/projects/assigned", controllers.GetAssignedProjects)
			authorized.GET("/projects/:id", controllers.GetProject)
			authorized.PUT("/projects/:id", controllers.UpdateProject)
			authorized.DELETE("/projects/:id", controllers.DeleteProject)
			authorized.POST("/projects/:id/assign", controllers.AssignProject)

			authorized.GET("/projects/:id/export", controllers.ExportProject)
			authorized.POST("/projects/:id/export/archive", controllers.ArchiveExport)

			authorized.POST("/rewrite", controllers.RewriteText)

			authorized.GET("/stream/projects", controllers.StreamProjects)
			authorized.GET("/stream/roster", controllers.StreamRoster)
		}
	}

	// Start server
	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Renowix Surveyor API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	// Get list of tables
	var tables []string
	if err := db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
