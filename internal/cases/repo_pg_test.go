package cases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	c := Case{
		ID:              "case-1",
		UserID:          "user-1",
		Title:           "Unpaid invoice",
		Narrative:       "Invoice 2024-17 is still open.",
		ClaimAmount:     1200,
		Currency:        "CHF",
		Kanton:          "ZH",
		Parties:         []Party{{Name: "Anna Keller", Role: "claimant"}},
		Status:          StatusNewIntake,
		CurrentStep:     "Case created",
		NextActionLabel: "Upload documents",
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	mock.ExpectExec("INSERT INTO cases").
		WithArgs(
			c.ID, c.UserID, c.Title, c.Narrative, c.ClaimAmount, c.Currency, c.Kanton,
			sqlmock.AnyArg(), // parties json
			"NEW_INTAKE", c.CurrentStep, c.NextActionLabel, now, now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "title", "narrative", "claim_amount", "currency", "kanton", "parties",
		"status", "current_step", "next_action_label", "created_at", "updated_at",
	}).AddRow(
		"case-1", "user-1", "Unpaid invoice", "Invoice is open.", 1200.0, "CHF", "ZH",
		`[{"name":"Anna Keller","role":"claimant"}]`,
		"DOCS_UPLOADED", "Documents uploaded", "Run the analysis", now, now,
	)

	mock.ExpectQuery("SELECT id, user_id, title, narrative").
		WithArgs("case-1").
		WillReturnRows(rows)

	c, err := repo.GetByID(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if c.Status != StatusDocsUploaded {
		t.Fatalf("status = %s", c.Status)
	}
	if len(c.Parties) != 1 || c.Parties[0].Name != "Anna Keller" {
		t.Fatalf("parties = %+v", c.Parties)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id, user_id, title, narrative").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "title", "narrative", "claim_amount", "currency", "kanton", "parties",
			"status", "current_step", "next_action_label", "created_at", "updated_at",
		}))

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoUpdateStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE cases").
		WithArgs("case-1", "ANALYZED", "Analysis complete", "Generate documents", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "case-1", StatusAnalyzed, "Analysis complete", "Generate documents", now)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateStatusNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE cases").
		WithArgs("missing", "ANALYZED", "Analysis complete", "Generate documents", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", StatusAnalyzed, "Analysis complete", "Generate documents", now)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoUpdateClaim(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE cases SET claim_amount").
		WithArgs("case-1", 1234.56, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateClaim(context.Background(), "case-1", 1234.56, now); err != nil {
		t.Fatalf("UpdateClaim: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
