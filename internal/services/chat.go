package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/openai"
)

const healthDataFilename = "user_health_data.csv"

// StreamSession is an opened completion stream plus the persistence hook
// that runs once the full text has been assembled. ConversationID is set
// only for flows that record chat history.
type StreamSession struct {
	ConversationID string
	Source         *openai.Stream
	OnComplete     func(string) error
}

// ChatService ties the conversation store, the blob store and the
// completion client into the streaming flows the API exposes.
type ChatService interface {
	SimpleChat(ctx context.Context, userID, conversationID, userInput string) (*StreamSession, error)
	AnalyzeHealthData(ctx context.Context, userID, conversationID, userInput, fileURL string) (*StreamSession, error)
	GenerateOutcome(ctx context.Context, fileURL, text string, onOutcome func(string) error) (*StreamSession, error)
	SummarizeStudy(ctx context.Context, text string, onSummary func(string) error) (*StreamSession, error)
}

type chatService struct {
	log           *logger.Logger
	client        openai.Client
	conversations ConversationService
	bucket        BucketService
}

// NewChatService wires the chat flows. bucket may be nil when storage is
// unconfigured; file-backed flows then fail with a dependency error
// instead of at startup.
func NewChatService(log *logger.Logger, client openai.Client, conversations ConversationService, bucket BucketService) ChatService {
	return &chatService{
		log:           log.With("service", "ChatService"),
		client:        client,
		conversations: conversations,
		bucket:        bucket,
	}
}

func (s *chatService) SimpleChat(ctx context.Context, userID, conversationID, userInput string) (*StreamSession, error) {
	convo, err := s.conversations.Begin(ctx, conversationID, userID, userInput)
	if err != nil {
		return nil, err
	}

	input := fmt.Sprintf("Conversation:\n%s", convo.Transcript)
	stream, err := s.client.Stream(ctx, chatInstructions, input)
	if err != nil {
		return nil, err
	}

	return &StreamSession{
		ConversationID: convo.ConversationID,
		Source:         stream,
		OnComplete:     convo.SaveAssistant,
	}, nil
}

func (s *chatService) AnalyzeHealthData(ctx context.Context, userID, conversationID, userInput, fileURL string) (*StreamSession, error) {
	if s.bucket == nil {
		return nil, apierr.Unavailable("file storage is not configured")
	}
	if strings.TrimSpace(fileURL) == "" {
		return nil, apierr.Validation("file url is empty")
	}

	convo, err := s.conversations.Begin(ctx, conversationID, userID, userInput)
	if err != nil {
		return nil, err
	}

	file, err := s.bucket.Download(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// The file body is consumed by the upload before the stream opens, so
	// closing it on return is safe.
	stream, err := s.client.StreamWithFile(ctx, analyzeHealthDataInstructions, convo.Transcript, file, healthDataFilename)
	if err != nil {
		return nil, err
	}

	return &StreamSession{
		ConversationID: convo.ConversationID,
		Source:         stream,
		OnComplete:     convo.SaveAssistant,
	}, nil
}

func (s *chatService) GenerateOutcome(ctx context.Context, fileURL, text string, onOutcome func(string) error) (*StreamSession, error) {
	if s.bucket == nil {
		return nil, apierr.Unavailable("file storage is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apierr.Validation("study text is empty")
	}
	if strings.TrimSpace(fileURL) == "" {
		return nil, apierr.Validation("file url is empty")
	}

	file, err := s.bucket.Download(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stream, err := s.client.StreamWithFile(ctx, studyOutcomeInstructions, text, file, healthDataFilename)
	if err != nil {
		return nil, err
	}

	return &StreamSession{Source: stream, OnComplete: onOutcome}, nil
}

func (s *chatService) SummarizeStudy(ctx context.Context, text string, onSummary func(string) error) (*StreamSession, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apierr.Validation("study text is empty")
	}

	input := fmt.Sprintf("Text to summarize:\n%s", text)
	stream, err := s.client.Stream(ctx, studySummaryInstructions, input)
	if err != nil {
		return nil, err
	}

	return &StreamSession{Source: stream, OnComplete: onSummary}, nil
}
