package services

import (
	"context"
	"testing"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/repos"
)

func newChatFixture(t *testing.T) (ChatService, ConversationService) {
	t.Helper()
	log := testLog(t)
	conversations := NewConversationService(log, repos.NewChatMessageRepo(testDB(t), log))
	chat := NewChatService(log, &fakeCompletion{}, conversations, nil)
	return chat, conversations
}

func TestSimpleChatPersistsUserTurnBeforeStreaming(t *testing.T) {
	chat, conversations := newChatFixture(t)
	ctx := context.Background()

	// The fake client cannot stream, so the call fails after the user turn
	// was recorded. History must still contain it.
	_, err := chat.SimpleChat(ctx, "u", "conv-1", "my question")
	if err == nil {
		t.Fatal("expected streaming failure from fake client")
	}

	turns, err := conversations.History(ctx, "conv-1", "u")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "my question" {
		t.Fatalf("user turn not durably recorded: %+v", turns)
	}
}

func TestAnalyzeHealthDataWithoutStorage(t *testing.T) {
	chat, _ := newChatFixture(t)

	_, err := chat.AnalyzeHealthData(context.Background(), "u", "", "question", "https://storage.googleapis.com/b/k")
	if err == nil {
		t.Fatal("expected dependency error without storage")
	}
	if apierr.CodeOf(err) != apierr.CodeUnavailable {
		t.Fatalf("expected dependency_unavailable, got %q", apierr.CodeOf(err))
	}
}

func TestGenerateOutcomeValidation(t *testing.T) {
	log := testLog(t)
	conversations := NewConversationService(log, repos.NewChatMessageRepo(testDB(t), log))
	chat := NewChatService(log, &fakeCompletion{}, conversations, newURLOnlyBucket(t))

	if _, err := chat.GenerateOutcome(context.Background(), "https://storage.googleapis.com/health-data/k", "  ", nil); err == nil {
		t.Fatal("expected validation error for empty text")
	}
	if _, err := chat.GenerateOutcome(context.Background(), "", "study text", nil); err == nil {
		t.Fatal("expected validation error for empty file url")
	}
}

func TestSummarizeStudyValidation(t *testing.T) {
	chat, _ := newChatFixture(t)

	_, err := chat.SummarizeStudy(context.Background(), "   ", nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if apierr.CodeOf(err) != apierr.CodeValidation {
		t.Fatalf("expected validation code, got %q", apierr.CodeOf(err))
	}
}
