package repos

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/types"
)

type StudyRepo interface {
	Create(ctx context.Context, tx *gorm.DB, study *types.Study) (*types.Study, error)
	GetByStudyID(ctx context.Context, tx *gorm.DB, studyID, userID string) (*types.Study, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*types.Study, error)
	UpdateSummary(ctx context.Context, tx *gorm.DB, studyID, userID, summary string) error
	UpdateOutcome(ctx context.Context, tx *gorm.DB, studyID, userID, outcome string) error
}

type studyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudyRepo(db *gorm.DB, baseLog *logger.Logger) StudyRepo {
	repoLog := baseLog.With("repo", "StudyRepo")
	return &studyRepo{db: db, log: repoLog}
}

func (r *studyRepo) Create(ctx context.Context, tx *gorm.DB, study *types.Study) (*types.Study, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if study == nil {
		return nil, apierr.Validation("study is nil")
	}
	if strings.TrimSpace(study.StudyID) == "" {
		return nil, apierr.Validation("study id is empty")
	}
	if strings.TrimSpace(study.UserID) == "" {
		return nil, apierr.Validation("user id is empty")
	}

	if err := transaction.WithContext(ctx).Create(study).Error; err != nil {
		return nil, apierr.Storage(err)
	}
	return study, nil
}

func (r *studyRepo) GetByStudyID(ctx context.Context, tx *gorm.DB, studyID, userID string) (*types.Study, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var study types.Study
	err := transaction.WithContext(ctx).
		Where("study_id = ? AND user_id = ?", studyID, userID).
		First(&study).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierr.NotFound("study %s not found", studyID)
		}
		return nil, apierr.Storage(err)
	}
	return &study, nil
}

func (r *studyRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*types.Study, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	results := []*types.Study{}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("import_date DESC").
		Find(&results).Error; err != nil {
		return nil, apierr.Storage(err)
	}
	return results, nil
}

func (r *studyRepo) UpdateSummary(ctx context.Context, tx *gorm.DB, studyID, userID, summary string) error {
	return r.updateColumn(ctx, tx, studyID, userID, "summary", summary)
}

func (r *studyRepo) UpdateOutcome(ctx context.Context, tx *gorm.DB, studyID, userID, outcome string) error {
	return r.updateColumn(ctx, tx, studyID, userID, "outcome", outcome)
}

// updateColumn touches exactly one generated-text column; title and
// import_date are immutable after create.
func (r *studyRepo) updateColumn(ctx context.Context, tx *gorm.DB, studyID, userID, column, value string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Study{}).
		Where("study_id = ? AND user_id = ?", studyID, userID).
		Update(column, value)
	if res.Error != nil {
		return apierr.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound("study %s not found", studyID)
	}
	return nil
}
