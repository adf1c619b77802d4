// internal/autofix/mocks_test.go
package autofix_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/oracle"
)

// MockDetector is a mock implementation of autofix.IssueDetector.
type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Detect(ctx context.Context, path, language, content string) ([]schemas.Finding, error) {
	args := m.Called(ctx, path, language, content)
	findings, _ := args.Get(0).([]schemas.Finding)
	return findings, args.Error(1)
}

// MockLLM is a mock implementation of schemas.LLMClient.
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLM) Close() error {
	return nil
}

// MockOracle is a mock implementation of autofix.TestOracle.
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Run(ctx context.Context, tree oracle.Tree) (schemas.TestVerdict, error) {
	args := m.Called(ctx, tree)
	return args.Get(0).(schemas.TestVerdict), args.Error(1)
}

// MockStore is a mock implementation of schemas.SessionStore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveResult(ctx context.Context, rec schemas.SessionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) GetResult(ctx context.Context, sessionID string) (*schemas.SessionRecord, error) {
	args := m.Called(ctx, sessionID)
	rec, _ := args.Get(0).(*schemas.SessionRecord)
	return rec, args.Error(1)
}

func (m *MockStore) ListResults(ctx context.Context, limit int) ([]schemas.SessionSummary, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]schemas.SessionSummary)
	return rows, args.Error(1)
}

func (m *MockStore) Close() error {
	return nil
}
