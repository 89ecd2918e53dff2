package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/renowix/surveyor-api/config"
	"github.com/renowix/surveyor-api/middleware"
	"github.com/renowix/surveyor-api/models"
	"github.com/renowix/surveyor-api/services"
	"github.com/renowix/surveyor-api/stream"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(&models.Profile{}, &models.Project{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// setupMockAuth0Server creates a mock HTTP server that simulates Auth0's
// /userinfo endpoint, keyed by access token
func setupMockAuth0Server(userInfoMap map[string]*services.Auth0UserInfo) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || len(authHeader) < 7 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		token := authHeader[7:] // Remove "Bearer " prefix

		userInfo, exists := userInfoMap[token]
		if !exists {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(userInfo)
	}))
}

// mockAuthMiddleware simulates the Auth0 JWT middleware for testing.
// It sets up the context exactly as the real EnsureValidToken middleware
// does; note there is no role claim anywhere, the role is derived from the
// profile row.
func mockAuthMiddleware(auth0ID, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", auth0ID)
		c.Set("access_token", accessToken)

		mockClaims := &validator.ValidatedClaims{
			CustomClaims: &middleware.CustomClaims{},
		}
		c.Set("validated_claims", mockClaims)

		c.Next()
	}
}

// useTestConfig installs a config pointing Auth0 calls at the mock server
// and restores the previous config when the test ends.
func useTestConfig(t *testing.T, mockServerURL string) {
	original := config.GetConfig()
	t.Cleanup(func() {
		config.SetConfig(original)
	})
	config.SetConfig(&config.Config{
		Port:        "8080",
		GoEnv:       "test",
		Auth0Domain: mockServerURL, // http:// URL is used verbatim for tests
		AdminEmail:  "admin@renowix.test",
	})
}

func TestCreateSession(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	stream.SetHub(stream.NewHub(db, nil))

	tests := []struct {
		name           string
		auth0ID        string
		email          string
		userName       string
		accessToken    string
		expectedStatus int
		expectedError  string
		expectedRole   string
		expectedRoute  string
	}{
		{
			name:           "Admin email signs in to the admin route",
			auth0ID:        "auth0|admin",
			email:          "admin@renowix.test",
			userName:       "Renowix Admin",
			accessToken:    "token-admin",
			expectedStatus: http.StatusOK,
			expectedRole:   models.RoleAdmin,
			expectedRoute:  "admin",
		},
		{
			name:           "Admin email matches case-insensitively",
			auth0ID:        "auth0|admin",
			email:          "ADMIN@Renowix.Test",
			userName:       "Renowix Admin",
			accessToken:    "token-admin-caps",
			expectedStatus: http.StatusOK,
			expectedRole:   models.RoleAdmin,
			expectedRoute:  "admin",
		},
		{
			name:           "First supervisor sign-in routes to complete profile",
			auth0ID:        "auth0|surveyor1",
			email:          "asha@renowix.test",
			userName:       "Asha",
			accessToken:    "token-surveyor1",
			expectedStatus: http.StatusOK,
			expectedRole:   models.RoleSupervisor,
			expectedRoute:  "complete_profile",
		},
		{
			name:           "Fail with missing email",
			auth0ID:        "auth0|noemail",
			email:          "",
			userName:       "No Email",
			accessToken:    "token-noemail",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "MISSING_EMAIL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.Exec("DELETE FROM profiles")

			mockServer := setupMockAuth0Server(map[string]*services.Auth0UserInfo{
				tt.accessToken: {
					Sub:   tt.auth0ID,
					Email: tt.email,
					Name:  tt.userName,
				},
			})
			defer mockServer.Close()
			useTestConfig(t, mockServer.URL)

			router := setupTestRouter()
			router.POST("/session", mockAuthMiddleware(tt.auth0ID, tt.accessToken), CreateSession)

			req, _ := http.NewRequest(http.MethodPost, "/session", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response map[string]interface{}
			err := json.Unmarshal(w.Body.Bytes(), &response)
			assert.NoError(t, err)

			if tt.expectedError != "" {
				assert.False(t, response["success"].(bool))
				errorData := response["error"].(map[string]interface{})
				assert.Equal(t, tt.expectedError, errorData["code"])
				return
			}

			data := response["data"].(map[string]interface{})
			assert.Equal(t, tt.expectedRoute, data["route"])
			profileData := data["profile"].(map[string]interface{})
			assert.Equal(t, tt.expectedRole, profileData["role"])
		})
	}
}

func TestCreateSession_AdminProfileForceWritten(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	stream.SetHub(stream.NewHub(db, nil))

	// A stale admin row from an earlier deployment
	db.Create(&models.Profile{
		UID:   "auth0|admin",
		Email: "admin@renowix.test",
		Name:  "Old Name",
		Role:  models.RoleSupervisor,
	})

	mockServer := setupMockAuth0Server(map[string]*services.Auth0UserInfo{
		"token-admin": {
			Sub:   "auth0|admin",
			Email: "admin@renowix.test",
			Name:  "Renowix Admin",
		},
	})
	defer mockServer.Close()
	useTestConfig(t, mockServer.URL)

	router := setupTestRouter()
	router.POST("/session", mockAuthMiddleware("auth0|admin", "token-admin"), CreateSession)

	req, _ := http.NewRequest(http.MethodPost, "/session", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	// Every admin login overwrites the row; nothing of the stale state survives
	var stored models.Profile
	db.Where("uid = ?", "auth0|admin").First(&stored)
	assert.Equal(t, models.RoleAdmin, stored.Role)
	assert.Equal(t, "Renowix Admin", stored.Name)

	var count int64
	db.Model(&models.Profile{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateSession_ReturningSupervisor(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	stream.SetHub(stream.NewHub(db, nil))

	db.Create(&models.Profile{
		UID:   "auth0|surveyor1",
		Email: "asha@renowix.test",
		Name:  "Asha",
		Role:  models.RoleSupervisor,
	})

	mockServer := setupMockAuth0Server(map[string]*services.Auth0UserInfo{
		"token-surveyor1": {
			Sub:   "auth0|surveyor1",
			Email: "asha@renowix.test",
			Name:  "Asha",
		},
	})
	defer mockServer.Close()
	useTestConfig(t, mockServer.URL)

	router := setupTestRouter()
	router.POST("/session", mockAuthMiddleware("auth0|surveyor1", "token-surveyor1"), CreateSession)

	req, _ := http.NewRequest(http.MethodPost, "/session", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "dashboard", data["route"])
}

func TestUpdateProfile(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	stream.SetHub(stream.NewHub(db, nil))

	db.Create(&models.Profile{
		UID:   "auth0|surveyor1",
		Email: "asha@renowix.test",
		Role:  models.RoleSupervisor,
	})

	tests := []struct {
		name           string
		auth0ID        string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Complete pending profile",
			auth0ID:        "auth0|surveyor1",
			requestBody:    map[string]interface{}{"name": "Asha"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Fail with missing name",
			auth0ID:        "auth0|surveyor1",
			requestBody:    map[string]interface{}{},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Fail without a profile",
			auth0ID:        "auth0|stranger",
			requestBody:    map[string]interface{}{"name": "Nobody"},
			expectedStatus: http.StatusNotFound,
			expectedError:  "PROFILE_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.PATCH("/profile", mockAuthMiddleware(tt.auth0ID, "mock-token"), UpdateProfile)

			body, _ := json.Marshal(tt.requestBody)
			req, _ := http.NewRequest(http.MethodPatch, "/profile", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response map[string]interface{}
			err := json.Unmarshal(w.Body.Bytes(), &response)
			assert.NoError(t, err)

			if tt.expectedError != "" {
				errorData := response["error"].(map[string]interface{})
				assert.Equal(t, tt.expectedError, errorData["code"])
				return
			}

			data := response["data"].(map[string]interface{})
			assert.Equal(t, "Asha", data["name"])
		})
	}
}

func TestGetSupervisors(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	db.Create(&models.Profile{UID: "auth0|admin", Email: "admin@renowix.test", Name: "Admin", Role: models.RoleAdmin})
	db.Create(&models.Profile{UID: "auth0|surveyor1", Email: "asha@renowix.test", Name: "Asha", Role: models.RoleSupervisor})
	db.Create(&models.Profile{UID: "auth0|surveyor2", Email: "ravi@renowix.test", Name: "Ravi", Role: models.RoleSupervisor})

	t.Run("Admin sees the supervisor roster only", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/supervisors", mockAuthMiddleware("auth0|admin", "mock-token"), GetSupervisors)

		req, _ := http.NewRequest(http.MethodGet, "/supervisors", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		data := response["data"].([]interface{})
		assert.Len(t, data, 2)
		for _, entry := range data {
			profile := entry.(map[string]interface{})
			assert.Equal(t, models.RoleSupervisor, profile["role"])
		}
	})

	t.Run("Supervisor is refused", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/supervisors", mockAuthMiddleware("auth0|surveyor1", "mock-token"), GetSupervisors)

		req, _ := http.NewRequest(http.MethodGet, "/supervisors", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		errorData := response["error"].(map[string]interface{})
		assert.Equal(t, "FORBIDDEN", errorData["code"])
	})
}
