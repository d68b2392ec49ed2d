package services

import (
	"context"
	"testing"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/repos"
)

func newStudyService(t *testing.T) StudyService {
	t.Helper()
	log := testLog(t)
	return NewStudyService(log, repos.NewStudyRepo(testDB(t), log))
}

func TestSetupCreatesStudyWhenNoIDGiven(t *testing.T) {
	svc := newStudyService(t)
	ctx := context.Background()

	setup, err := svc.Setup(ctx, "u", "Morning runs vs sleep", "")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if setup.StudyID == "" {
		t.Fatal("expected a generated study id")
	}

	study, err := svc.Get(ctx, setup.StudyID, "u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if study.Title != "Morning runs vs sleep" {
		t.Fatalf("title = %q", study.Title)
	}
	if study.Summary != "" || study.Outcome != "" {
		t.Fatalf("new study should start empty: %+v", study)
	}
	if study.ImportDate.IsZero() {
		t.Fatal("import date not set")
	}
}

func TestSetupReusesExistingID(t *testing.T) {
	svc := newStudyService(t)
	ctx := context.Background()

	first, err := svc.Setup(ctx, "u", "Original", "")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	second, err := svc.Setup(ctx, "u", "Ignored title", first.StudyID)
	if err != nil {
		t.Fatalf("Setup with existing id: %v", err)
	}
	if second.StudyID != first.StudyID {
		t.Fatalf("id not reused: %q vs %q", second.StudyID, first.StudyID)
	}

	studies, err := svc.List(ctx, "u")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(studies) != 1 {
		t.Fatalf("reusing an id must not create a second row, got %d", len(studies))
	}
	if studies[0].Title != "Original" {
		t.Fatalf("title mutated on reuse: %q", studies[0].Title)
	}
}

func TestSetupCallbacksFillGeneratedColumns(t *testing.T) {
	svc := newStudyService(t)
	ctx := context.Background()

	setup, err := svc.Setup(ctx, "u", "Study", "")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if err := setup.SaveSummary("a concise summary"); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	if err := setup.SaveOutcome("goal met"); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}

	study, err := svc.Get(ctx, setup.StudyID, "u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if study.Summary != "a concise summary" || study.Outcome != "goal met" {
		t.Fatalf("callbacks did not persist: %+v", study)
	}
}

func TestSetupCallbacksForUnknownStudyReturnNotFound(t *testing.T) {
	svc := newStudyService(t)

	setup, err := svc.Setup(context.Background(), "u", "", "id-that-does-not-exist")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	err = setup.SaveOutcome("text")
	if err == nil {
		t.Fatal("expected not found for unknown study id")
	}
	if apierr.CodeOf(err) != apierr.CodeNotFound {
		t.Fatalf("expected not_found code, got %q", apierr.CodeOf(err))
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	svc := newStudyService(t)

	_, err := svc.Create(context.Background(), "u", "", "   ", "", "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if apierr.CodeOf(err) != apierr.CodeValidation {
		t.Fatalf("expected validation code, got %q", apierr.CodeOf(err))
	}
}
