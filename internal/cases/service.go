package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dispute-backend/internal/shared/telemetry"
)

// Service contains business logic for cases, including the status machine.
type Service struct {
	Repo Repo

	now func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo, now: time.Now}
}

// stepLabels are the defaults shown to the claimant per status.
var stepLabels = map[Status][2]string{
	StatusNewIntake:          {"Describe your dispute", "Upload your documents"},
	StatusDocsUploaded:       {"Documents uploaded", "Run the case analysis"},
	StatusAnalyzed:           {"Analysis complete", "Draft the demand letter"},
	StatusLetterDrafted:      {"Demand letter drafted", "Order service by bailiff"},
	StatusBailiffOrdered:     {"Bailiff ordered", "Await confirmation of service"},
	StatusServed:             {"Demand letter served", "Draft the summons"},
	StatusSummonsDrafted:     {"Summons drafted", "File with the court"},
	StatusFiled:              {"Filed with the court", "Await start of proceedings"},
	StatusProceedingsOngoing: {"Proceedings ongoing", "Await judgment"},
	StatusJudgment:           {"Judgment received", "Case closed"},
}

// Create stores a new case at NEW_INTAKE.
func (s *Service) Create(ctx context.Context, userID, title, narrative string, claimAmount float64, currency, kanton string, parties []Party) (Case, error) {
	if userID == "" {
		return Case{}, errors.New("userID is required")
	}
	if strings.TrimSpace(title) == "" {
		return Case{}, errors.New("title is required")
	}
	if claimAmount < 0 {
		return Case{}, errors.New("claimAmount must not be negative")
	}
	for _, p := range parties {
		switch p.Role {
		case RoleClaimant, RoleRespondent, RoleRepresentative:
		default:
			return Case{}, fmt.Errorf("unknown party role: %s", p.Role)
		}
	}
	if strings.TrimSpace(currency) == "" {
		currency = "CHF"
	}

	now := s.now().UTC()
	labels := stepLabels[StatusNewIntake]
	c := Case{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           strings.TrimSpace(title),
		Narrative:       narrative,
		ClaimAmount:     claimAmount,
		Currency:        currency,
		Kanton:          strings.TrimSpace(kanton),
		Parties:         parties,
		Status:          StatusNewIntake,
		CurrentStep:     labels[0],
		NextActionLabel: labels[1],
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		return Case{}, err
	}
	return c, nil
}

// Get returns a case by ID.
func (s *Service) Get(ctx context.Context, caseID string) (Case, error) {
	if caseID == "" {
		return Case{}, errors.New("caseID is required")
	}
	return s.Repo.GetByID(ctx, caseID)
}

// List returns cases for a user ordered newest-first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Case, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// Advance moves a case to the target status. It is the only mutation the
// status machine exposes: calling it again with the current status only
// refreshes updatedAt, and backward moves outside the allowed lateral set
// are rejected. Empty labels fall back to the defaults for the target.
func (s *Service) Advance(ctx context.Context, caseID string, target Status, currentStep, nextActionLabel string) (Case, error) {
	if !target.Valid() {
		return Case{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	c, err := s.Repo.GetByID(ctx, caseID)
	if err != nil {
		return Case{}, err
	}

	now := s.now().UTC()
	if c.Status == target {
		if err := s.Repo.Touch(ctx, caseID, now); err != nil {
			return Case{}, err
		}
		c.UpdatedAt = now
		return c, nil
	}
	if !CanTransition(c.Status, target) {
		return Case{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, target)
	}

	labels := stepLabels[target]
	if strings.TrimSpace(currentStep) == "" {
		currentStep = labels[0]
	}
	if strings.TrimSpace(nextActionLabel) == "" {
		nextActionLabel = labels[1]
	}
	if err := s.Repo.UpdateStatus(ctx, caseID, target, currentStep, nextActionLabel, now); err != nil {
		return Case{}, err
	}
	telemetry.Info("case.status", map[string]any{
		"case_id":           caseID,
		"status":            string(target),
		"status_transition": fmt.Sprintf("%s->%s", c.Status, target),
	})
	c.Status = target
	c.CurrentStep = currentStep
	c.NextActionLabel = nextActionLabel
	c.UpdatedAt = now
	return c, nil
}

// Annotate replaces the step labels without moving the status. Used when an
// outcome leaves the case where it is but the claimant needs new guidance,
// such as an unsuitable-venue verdict.
func (s *Service) Annotate(ctx context.Context, caseID, currentStep, nextActionLabel string) (Case, error) {
	c, err := s.Repo.GetByID(ctx, caseID)
	if err != nil {
		return Case{}, err
	}
	now := s.now().UTC()
	if strings.TrimSpace(currentStep) == "" {
		currentStep = c.CurrentStep
	}
	if strings.TrimSpace(nextActionLabel) == "" {
		nextActionLabel = c.NextActionLabel
	}
	if err := s.Repo.UpdateStatus(ctx, caseID, c.Status, currentStep, nextActionLabel, now); err != nil {
		return Case{}, err
	}
	c.CurrentStep = currentStep
	c.NextActionLabel = nextActionLabel
	c.UpdatedAt = now
	return c, nil
}

// ApplyClaimAmount overwrites the claim amount, used when an extraction
// result is confident enough to act on.
func (s *Service) ApplyClaimAmount(ctx context.Context, caseID string, amount float64) (Case, error) {
	if amount < 0 {
		return Case{}, errors.New("claimAmount must not be negative")
	}
	c, err := s.Repo.GetByID(ctx, caseID)
	if err != nil {
		return Case{}, err
	}
	now := s.now().UTC()
	if err := s.Repo.UpdateClaim(ctx, caseID, amount, now); err != nil {
		return Case{}, err
	}
	c.ClaimAmount = amount
	c.UpdatedAt = now
	return c, nil
}

// Touch refreshes updatedAt, used by mutations that must not move status.
func (s *Service) Touch(ctx context.Context, caseID string) error {
	return s.Repo.Touch(ctx, caseID, s.now().UTC())
}

// Lifecycle events. Each is a completed side effect that drives one
// transition; none of them are direct user status writes.

// RecordFirstUpload moves a fresh case to DOCS_UPLOADED.
func (s *Service) RecordFirstUpload(ctx context.Context, caseID string) (Case, error) {
	return s.Advance(ctx, caseID, StatusDocsUploaded, "", "")
}

// RecordLetterDrafted marks the demand letter as drafted.
func (s *Service) RecordLetterDrafted(ctx context.Context, caseID string) (Case, error) {
	return s.Advance(ctx, caseID, StatusLetterDrafted, "", "")
}

// RecordBailiffOrdered marks service of the letter as ordered.
func (s *Service) RecordBailiffOrdered(ctx context.Context, caseID string) (Case, error) {
	return s.Advance(ctx, caseID, StatusBailiffOrdered, "", "")
}

// RecordServed is driven by the bailiff confirmation callback.
func (s *Service) RecordServed(ctx context.Context, caseID string) (Case, error) {
	return s.Advance(ctx, caseID, StatusServed, "", "")
}

// RecordSummonsDrafted marks the summons as drafted.
func (s *Service) RecordSummonsDrafted(ctx context.Context, caseID string) (Case, error) {
	return s.Advance(ctx, caseID, StatusSummonsDrafted, "", "")
}

// RecordFiled marks the case as filed with the court.
func (s *Service) RecordFiled(ctx context.Context, caseID string) (Case, error) {
	return s.Advance(ctx, caseID, StatusFiled, "", "")
}

// RecordProceedingsStarted marks court proceedings as ongoing.
func (s *Service) RecordProceedingsStarted(ctx context.Context, caseID string) (Case, error) {
	return s.Advance(ctx, caseID, StatusProceedingsOngoing, "", "")
}

// RecordJudgment marks the final judgment as received.
func (s *Service) RecordJudgment(ctx context.Context, caseID string) (Case, error) {
	return s.Advance(ctx, caseID, StatusJudgment, "", "")
}
