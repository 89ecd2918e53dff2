package controllers

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/renowix/surveyor-api/config"
	"github.com/renowix/surveyor-api/models"
	"github.com/renowix/surveyor-api/stream"
)

// readSSEEvent reads one complete server-sent event (up to the blank line)
func readSSEEvent(t *testing.T, reader *bufio.Reader) string {
	var event strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("Failed to read SSE stream: %v", err)
		}
		if strings.TrimSpace(line) == "" {
			return event.String()
		}
		event.WriteString(line)
	}
}

func TestStreamProjects_SupervisorHistory(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	stream.SetHub(stream.NewHub(db, nil))

	db.Create(&models.Profile{UID: "auth0|surveyor1", Email: "asha@renowix.test", Name: "Asha", Role: models.RoleSupervisor})
	db.Create(&models.Project{Client: models.Client{Name: "Sameer"}, SurveyorID: "auth0|surveyor1", Status: models.StatusQuotation})
	db.Create(&models.Project{Client: models.Client{Name: "Other"}, SurveyorID: "auth0|surveyor2", Status: models.StatusQuotation})

	router := setupTestRouter()
	router.GET("/stream/projects", mockAuthMiddleware("auth0|surveyor1", "mock-token"), StreamProjects)

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/stream/projects")
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// The initial snapshot arrives without any write happening first
	event := readSSEEvent(t, bufio.NewReader(resp.Body))
	assert.Contains(t, event, "event:snapshot")
	assert.Contains(t, event, "Sameer")
	assert.NotContains(t, event, "Other")
}

func TestStreamProjects_AssignedView(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	stream.SetHub(stream.NewHub(db, nil))

	assignee := "auth0|surveyor2"
	db.Create(&models.Profile{UID: "auth0|surveyor2", Email: "ravi@renowix.test", Name: "Ravi", Role: models.RoleSupervisor})
	db.Create(&models.Project{Client: models.Client{Name: "Assigned"}, SurveyorID: "auth0|surveyor1", Status: models.StatusProject, AssignedTo: &assignee})
	db.Create(&models.Project{Client: models.Client{Name: "StillQuotation"}, SurveyorID: "auth0|surveyor1", Status: models.StatusQuotation})

	router := setupTestRouter()
	router.GET("/stream/projects", mockAuthMiddleware("auth0|surveyor2", "mock-token"), StreamProjects)

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/stream/projects?view=assigned")
	assert.NoError(t, err)
	defer resp.Body.Close()

	event := readSSEEvent(t, bufio.NewReader(resp.Body))
	assert.Contains(t, event, "Assigned")
	assert.NotContains(t, event, "StillQuotation")
}

func TestStreamRoster_SupervisorRefused(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	stream.SetHub(stream.NewHub(db, nil))

	db.Create(&models.Profile{UID: "auth0|surveyor1", Email: "asha@renowix.test", Name: "Asha", Role: models.RoleSupervisor})

	router := setupTestRouter()
	router.GET("/stream/roster", mockAuthMiddleware("auth0|surveyor1", "mock-token"), StreamRoster)

	req, _ := http.NewRequest(http.MethodGet, "/stream/roster", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStreamProjects_WithoutProfile(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	stream.SetHub(stream.NewHub(db, nil))

	router := setupTestRouter()
	router.GET("/stream/projects", mockAuthMiddleware("auth0|nobody", "mock-token"), StreamProjects)

	req, _ := http.NewRequest(http.MethodGet, "/stream/projects", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamProjects_HubUnavailable(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	stream.SetHub(nil)

	db.Create(&models.Profile{UID: "auth0|surveyor1", Email: "asha@renowix.test", Name: "Asha", Role: models.RoleSupervisor})

	router := setupTestRouter()
	router.GET("/stream/projects", mockAuthMiddleware("auth0|surveyor1", "mock-token"), StreamProjects)

	req, _ := http.NewRequest(http.MethodGet, "/stream/projects", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
