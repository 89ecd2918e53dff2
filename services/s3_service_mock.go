package services

import (
	"fmt"
	"sync"
)

// MockS3Service is a mock implementation of the export archive for testing
type MockS3Service struct {
	archived map[string][]byte // map of S3 key to export content
	counter  int
	mu       sync.RWMutex
}

// NewMockS3Service creates a new mock S3 service
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{
		archived: make(map[string][]byte),
	}
}

// SetAsMockForTesting sets this mock as the global S3 service instance for testing
func (m *MockS3Service) SetAsMockForTesting() {
	SetS3Service(m)
}

// UploadExport simulates archiving an export
func (m *MockS3Service) UploadExport(projectID uint, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	s3Key := fmt.Sprintf("exports/%d/mock_%d.csv", projectID, m.counter)
	stored := make([]byte, len(content))
	copy(stored, content)
	m.archived[s3Key] = stored

	return s3Key, nil
}

// GetPresignedURL returns a deterministic mock URL
func (m *MockS3Service) GetPresignedURL(s3Key string) (string, error) {
	if s3Key == "" {
		return "", nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.archived[s3Key]; !exists {
		return "", fmt.Errorf("export not found: %s", s3Key)
	}
	return fmt.Sprintf("https://mock-s3.example.com/%s?signed=true", s3Key), nil
}

// DeleteExport removes an export from mock storage
func (m *MockS3Service) DeleteExport(s3Key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.archived, s3Key)
	return nil
}

// GetArchivedExport returns the stored content for assertions in tests
func (m *MockS3Service) GetArchivedExport(s3Key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, exists := m.archived[s3Key]
	return content, exists
}
