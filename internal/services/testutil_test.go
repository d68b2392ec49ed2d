package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/openai"
	"github.com/healthpredictor/healthpredictor-backend/internal/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&types.ChatMessage{}, &types.Study{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// fakeCompletion is a canned non-streaming completion client. Streaming
// methods are unsupported; tests that stream use real HTTP fixtures in
// the openai package instead.
type fakeCompletion struct {
	answer string
	err    error

	gotInstructions string
	gotInput        string
}

func (f *fakeCompletion) GenerateText(ctx context.Context, instructions, input string) (string, error) {
	f.gotInstructions = instructions
	f.gotInput = input
	return f.answer, f.err
}

func (f *fakeCompletion) GenerateTextWithFile(ctx context.Context, instructions, input string, file io.Reader, filename string) (string, error) {
	return f.GenerateText(ctx, instructions, input)
}

func (f *fakeCompletion) Stream(ctx context.Context, instructions, input string) (*openai.Stream, error) {
	return nil, errors.New("streaming not supported in fake")
}

func (f *fakeCompletion) StreamWithFile(ctx context.Context, instructions, input string, file io.Reader, filename string) (*openai.Stream, error) {
	return nil, errors.New("streaming not supported in fake")
}
