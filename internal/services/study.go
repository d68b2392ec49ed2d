package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/repos"
	"github.com/healthpredictor/healthpredictor-backend/internal/types"
)

// StudySetup binds a study id to the persistence callbacks the streaming
// analysis flows invoke once their text is complete.
type StudySetup struct {
	StudyID     string
	SaveSummary func(string) error
	SaveOutcome func(string) error
}

type StudyService interface {
	// Setup reuses an existing study id or creates a fresh study row, and
	// returns callbacks that fill in the generated summary and outcome.
	Setup(ctx context.Context, userID, title, existingStudyID string) (*StudySetup, error)
	Create(ctx context.Context, userID, studyID, title, summary, outcome string) (*types.Study, error)
	Get(ctx context.Context, studyID, userID string) (*types.Study, error)
	List(ctx context.Context, userID string) ([]*types.Study, error)
}

type studyService struct {
	log     *logger.Logger
	studies repos.StudyRepo
}

func NewStudyService(log *logger.Logger, studies repos.StudyRepo) StudyService {
	return &studyService{
		log:     log.With("service", "StudyService"),
		studies: studies,
	}
}

func (s *studyService) Setup(ctx context.Context, userID, title, existingStudyID string) (*StudySetup, error) {
	studyID := strings.TrimSpace(existingStudyID)
	if studyID == "" {
		if strings.TrimSpace(title) == "" {
			title = "Untitled study"
		}
		studyID = uuid.NewString()
		if _, err := s.Create(ctx, userID, studyID, title, "", ""); err != nil {
			return nil, err
		}
		s.log.Info("Created study", "study_id", studyID, "user_id", userID)
	}

	// The callbacks run after streaming ends; the request context may be
	// done by then, so they carry their own.
	saveSummary := func(summary string) error {
		return s.studies.UpdateSummary(context.Background(), nil, studyID, userID, summary)
	}
	saveOutcome := func(outcome string) error {
		return s.studies.UpdateOutcome(context.Background(), nil, studyID, userID, outcome)
	}

	return &StudySetup{
		StudyID:     studyID,
		SaveSummary: saveSummary,
		SaveOutcome: saveOutcome,
	}, nil
}

func (s *studyService) Create(ctx context.Context, userID, studyID, title, summary, outcome string) (*types.Study, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apierr.Validation("study title is empty")
	}
	studyID = strings.TrimSpace(studyID)
	if studyID == "" {
		studyID = uuid.NewString()
	}

	study := &types.Study{
		StudyID:    studyID,
		UserID:     userID,
		Title:      title,
		Summary:    summary,
		Outcome:    outcome,
		ImportDate: time.Now().UTC(),
	}
	return s.studies.Create(ctx, nil, study)
}

func (s *studyService) Get(ctx context.Context, studyID, userID string) (*types.Study, error) {
	if strings.TrimSpace(studyID) == "" {
		return nil, apierr.Validation("study id is empty")
	}
	return s.studies.GetByStudyID(ctx, nil, studyID, userID)
}

func (s *studyService) List(ctx context.Context, userID string) ([]*types.Study, error) {
	return s.studies.ListByUser(ctx, nil, userID)
}
