package services

import (
	"context"
	"strings"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/openai"
)

// SelectorService asks a small model whether a question needs the user's
// data file to answer. The verdict is advisory; callers route on it but
// nothing breaks when it is wrong.
type SelectorService interface {
	ShouldUseCodeInterpreter(ctx context.Context, userInput string) (bool, error)
}

type selectorService struct {
	log    *logger.Logger
	client openai.Client
}

func NewSelectorService(log *logger.Logger, client openai.Client) SelectorService {
	return &selectorService{
		log:    log.With("service", "SelectorService"),
		client: client,
	}
}

func (s *selectorService) ShouldUseCodeInterpreter(ctx context.Context, userInput string) (bool, error) {
	if strings.TrimSpace(userInput) == "" {
		return false, apierr.Validation("user input is empty")
	}

	answer, err := s.client.GenerateText(ctx, selectorInstructions, userInput)
	if err != nil {
		return false, err
	}

	verdict := strings.Contains(strings.ToLower(answer), "yes")
	s.log.Debug("Code interpreter selection", "verdict", verdict, "answer", strings.TrimSpace(answer))
	return verdict, nil
}
