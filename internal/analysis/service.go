package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"dispute-backend/internal/cases"
	"dispute-backend/internal/documents"
	"dispute-backend/internal/mindstudio"
	"dispute-backend/internal/queue"
	"dispute-backend/internal/quota"
	"dispute-backend/internal/shared/metrics"
	"dispute-backend/internal/shared/telemetry"
)

// Default workflow names on the worker side, overridable per deployment.
var defaultWorkflows = map[Phase]string{
	PhaseKantonCheck:  "kantonCheck",
	PhaseFullAnalysis: "fullAnalysis",
	PhaseSecondRun:    "secondAnalysis",
}

const workflowExtractDetails = "extractCaseDetails"

// OperationExtractDetails is the quota key for detail extraction attempts.
const OperationExtractDetails = "extract_details"

const (
	defaultPollInterval = 2 * time.Second
	defaultPollDeadline = 10 * time.Minute
)

// Service orchestrates analysis runs against the external worker. A run is
// recorded before it is dispatched and resolved after, so a crash between
// the two leaves a pending record to reconcile rather than silent loss.
type Service struct {
	Repo    Repo
	Cases   *cases.Service
	Docs    *documents.Service
	Worker  mindstudio.Dispatcher
	Threads mindstudio.ThreadStore
	Queue   queue.Client
	Quota   *quota.Service
	Limiter *Limiter

	WorkerID    string
	Workflows   map[Phase]string
	CallbackURL string

	PollInterval time.Duration
	PollDeadline time.Duration

	Now func() time.Time
}

// RunOptions tune one analysis run.
type RunOptions struct {
	// Async requests a callback-style dispatch instead of waiting for the
	// worker inline. Requires a configured callback URL.
	Async bool
	// MissingInfoAnswers are the claimant's answers to requirements flagged
	// by a previous run, keyed by requirement id.
	MissingInfoAnswers map[string]string
}

// RunOutcome is the immediate result of a run. Synchronous runs carry the
// finished Analysis and the updated Case; asynchronous runs carry only the
// identifiers to poll for.
type RunOutcome struct {
	Async     bool
	RequestID string
	ThreadID  string
	Analysis  *Analysis
	Case      *cases.Case
}

// Run executes one analysis phase for a case. Async runs prefer the
// callback protocol; deployments without a public callback URL fall back to
// the job queue when one is configured.
func (s *Service) Run(ctx context.Context, caseID, userID string, phase Phase, opts RunOptions) (RunOutcome, error) {
	if opts.Async && s.CallbackURL == "" && s.Queue != nil {
		return s.RunQueued(ctx, caseID, userID, phase, opts)
	}
	if err := s.workerReady(); err != nil {
		return RunOutcome{}, err
	}

	req, err := s.prepare(ctx, caseID, userID, phase, opts)
	if err != nil {
		return RunOutcome{}, err
	}

	dispatch := mindstudio.DispatchRequest{
		WorkerID:  s.WorkerID,
		Workflow:  s.workflowFor(phase),
		Variables: req.Input,
	}

	if opts.Async && s.CallbackURL != "" {
		dispatch.CallbackURL = s.CallbackURL
		resp, err := s.Worker.Dispatch(ctx, dispatch)
		if err != nil {
			werr := translateWorkerError(err)
			s.failRequest(ctx, req.ID, "", werr)
			return RunOutcome{}, werr
		}
		if resp.ThreadID == "" && len(resp.Result) > 0 {
			// The worker answered inline despite the callback request.
			return s.completeOutcome(ctx, req, "", resp.Result)
		}
		if err := s.Threads.MarkRunning(ctx, resp.ThreadID); err != nil {
			telemetry.Error("analysis.mark_running_failed", map[string]any{
				"request_id": req.ID,
				"thread_id":  resp.ThreadID,
				"error":      err.Error(),
			})
		}
		if err := s.Repo.UpdateRequest(ctx, req.ID, RequestPending, resp.ThreadID, ""); err != nil {
			telemetry.Error("analysis.record_thread_failed", map[string]any{
				"request_id": req.ID,
				"thread_id":  resp.ThreadID,
				"error":      err.Error(),
			})
		}
		telemetry.Info("analysis.dispatched", map[string]any{
			"request_id":          requestIDFromContext(ctx),
			"analysis_request_id": req.ID,
			"case_id":             caseID,
			"phase":               string(phase),
			"thread_id":           resp.ThreadID,
			"async":               true,
		})
		go s.finalizeAsync(backgroundWithRequestID(ctx), req.ID, resp.ThreadID)
		return RunOutcome{Async: true, RequestID: req.ID, ThreadID: resp.ThreadID}, nil
	}

	resp, err := s.Worker.Dispatch(ctx, dispatch)
	if err != nil {
		werr := translateWorkerError(err)
		s.failRequest(ctx, req.ID, "", werr)
		return RunOutcome{}, werr
	}
	return s.completeOutcome(ctx, req, resp.ThreadID, resp.Result)
}

// RunQueued records the request and hands it to the worker process instead
// of dispatching inline. The same preconditions and rate limits apply.
func (s *Service) RunQueued(ctx context.Context, caseID, userID string, phase Phase, opts RunOptions) (RunOutcome, error) {
	if s.Queue == nil {
		return RunOutcome{}, errors.New("no queue configured")
	}
	req, err := s.prepare(ctx, caseID, userID, phase, opts)
	if err != nil {
		return RunOutcome{}, err
	}
	msg := queue.Message{
		RequestID:  req.ID,
		CaseID:     caseID,
		Phase:      string(phase),
		EnqueuedAt: req.CreatedAt.Format(time.RFC3339),
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		werr := fmt.Errorf("enqueue analysis: %w", err)
		s.failRequest(ctx, req.ID, "", werr)
		return RunOutcome{}, werr
	}
	telemetry.Info("analysis.enqueued", map[string]any{
		"request_id":          requestIDFromContext(ctx),
		"analysis_request_id": req.ID,
		"case_id":             caseID,
		"phase":               string(phase),
	})
	return RunOutcome{Async: true, RequestID: req.ID}, nil
}

// ProcessRequest executes a previously enqueued request. Redelivered
// messages for an already-resolved request are a no-op.
func (s *Service) ProcessRequest(ctx context.Context, requestID string) error {
	req, err := s.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != RequestPending {
		return nil
	}
	// The request stays pending so a redelivery can retry once a worker
	// client is configured.
	if err := s.workerReady(); err != nil {
		return err
	}
	resp, err := s.Worker.Dispatch(ctx, mindstudio.DispatchRequest{
		WorkerID:  s.WorkerID,
		Workflow:  s.workflowFor(req.Phase),
		Variables: req.Input,
	})
	if err != nil {
		werr := translateWorkerError(err)
		s.failRequest(ctx, req.ID, "", werr)
		return werr
	}
	_, _, err = s.complete(ctx, req, resp.ThreadID, resp.Result)
	return err
}

// prepare validates a run, checks its preconditions and rate limits, and
// persists the pending dispatch record.
func (s *Service) prepare(ctx context.Context, caseID, userID string, phase Phase, opts RunOptions) (Request, error) {
	if caseID == "" || userID == "" {
		return Request{}, errors.New("caseID and userID are required")
	}
	if !ValidPhase(phase) {
		return Request{}, fmt.Errorf("%w: unknown phase %q", ErrPrecondition, phase)
	}

	c, err := s.ownedCase(ctx, caseID, userID)
	if err != nil {
		return Request{}, err
	}

	// A second run refines an existing analysis; without one there is
	// nothing to refine and no dispatch happens.
	if phase == PhaseSecondRun {
		count, err := s.Repo.CountByCase(ctx, caseID)
		if err != nil {
			return Request{}, err
		}
		if count == 0 {
			return Request{}, fmt.Errorf("%w: second run requires a completed analysis", ErrPrecondition)
		}
	}

	// The attempt is counted before dispatch so a failing worker cannot be
	// hammered into recovering.
	if s.Limiter != nil {
		if ok, retryAfter := s.Limiter.Allow(caseID + "|" + string(phase)); !ok {
			return Request{}, &RateLimitedError{RetryAfterSeconds: retryAfter}
		}
	}

	variables, err := s.buildVariables(ctx, c, phase, opts)
	if err != nil {
		return Request{}, err
	}

	now := s.nowFn().UTC()
	req := Request{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		UserID:    userID,
		Phase:     phase,
		Status:    RequestPending,
		Input:     variables,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.CreateRequest(ctx, req); err != nil {
		return Request{}, err
	}
	metrics.IncAnalysisStarted()
	return req, nil
}

func (s *Service) completeOutcome(ctx context.Context, req Request, threadID string, raw json.RawMessage) (RunOutcome, error) {
	a, updated, err := s.complete(ctx, req, threadID, raw)
	if err != nil {
		return RunOutcome{}, err
	}
	return RunOutcome{RequestID: req.ID, ThreadID: threadID, Analysis: &a, Case: updated}, nil
}

// complete resolves a dispatched run: normalize, gate, synthesize, persist,
// and drive the case transition. Every failure resolves the pending request
// record; the case itself is never left half-moved.
func (s *Service) complete(ctx context.Context, req Request, threadID string, raw json.RawMessage) (Analysis, *cases.Case, error) {
	res, usable := Normalize(raw)
	if !usable {
		s.failRequest(ctx, req.ID, threadID, ErrInvalidResponseShape)
		return Analysis{}, nil, ErrInvalidResponseShape
	}
	if err := GateConfidence(res.Confidence, ThresholdDisplay); err != nil {
		s.failRequest(ctx, req.ID, threadID, err)
		return Analysis{}, nil, err
	}

	c, err := s.Cases.Get(ctx, req.CaseID)
	if err != nil {
		s.failRequest(ctx, req.ID, threadID, err)
		return Analysis{}, nil, err
	}

	// Venue checks stay sparse on purpose; only full analyses get their
	// empty sections backfilled.
	if req.Phase != PhaseKantonCheck {
		Synthesize(&res, c.Narrative)
	}

	// Exactly one finalizer resolves a pending request. A poll racing the
	// background waiter loses the claim here and must not persist a second
	// analysis for the same run.
	claimed, err := s.Repo.ClaimRequest(ctx, req.ID, threadID)
	if err != nil {
		return Analysis{}, nil, err
	}
	if !claimed {
		return Analysis{}, nil, fmt.Errorf("%w: request already resolved", ErrPrecondition)
	}

	count, err := s.Repo.CountByCase(ctx, req.CaseID)
	if err != nil {
		s.failRequest(ctx, req.ID, threadID, err)
		return Analysis{}, nil, err
	}
	now := s.nowFn().UTC()
	a := Analysis{
		ID:         uuid.NewString(),
		CaseID:     req.CaseID,
		UserID:     req.UserID,
		Phase:      req.Phase,
		Version:    count + 1,
		Raw:        raw,
		Result:     res,
		Confidence: res.Confidence,
		CreatedAt:  now,
	}
	if err := s.Repo.CreateAnalysis(ctx, a); err != nil {
		s.failRequest(ctx, req.ID, threadID, err)
		return Analysis{}, nil, err
	}

	updated, err := s.applyOutcome(ctx, req, c, res)
	if err != nil {
		return Analysis{}, nil, err
	}

	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(float64(now.Sub(req.CreatedAt).Milliseconds()))
	telemetry.Info("analysis.completed", map[string]any{
		"request_id":          requestIDFromContext(ctx),
		"analysis_request_id": req.ID,
		"analysis_id":         a.ID,
		"case_id":             req.CaseID,
		"phase":               string(req.Phase),
		"version":             a.Version,
		"synthesized":         len(res.SynthesizedSections) > 0,
	})

	return a, &updated, nil
}

// applyOutcome moves the case after a successful run. An unsuitable venue
// verdict leaves the case where it is and swaps in corrective guidance; a
// full analysis that flags missing information routes the case back to the
// upload step; a case already past ANALYZED only gets its timestamp
// refreshed.
func (s *Service) applyOutcome(ctx context.Context, req Request, c cases.Case, res Result) (cases.Case, error) {
	if req.Phase == PhaseKantonCheck && res.Suitable != nil && !*res.Suitable {
		return s.Cases.Annotate(ctx, req.CaseID,
			"Venue check complete",
			"This dispute cannot proceed in the chosen canton; review the analysis for alternatives")
	}
	// MissingInformation is only ever worker-supplied; the synthesizer
	// never fills it.
	if req.Phase != PhaseKantonCheck && len(res.MissingInformation) > 0 {
		const step = "Analysis needs more information"
		const next = "Provide the requested information and run the analysis again"
		switch c.Status {
		case cases.StatusAnalyzed:
			return s.Cases.Advance(ctx, req.CaseID, cases.StatusDocsUploaded, step, next)
		case cases.StatusNewIntake, cases.StatusDocsUploaded:
			return s.Cases.Annotate(ctx, req.CaseID, step, next)
		}
		// Cases past ANALYZED keep their place; the requirements stay
		// visible on the analysis record.
	}
	updated, err := s.Cases.Advance(ctx, req.CaseID, cases.StatusAnalyzed, "", "")
	if errors.Is(err, cases.ErrInvalidTransition) {
		if terr := s.Cases.Touch(ctx, req.CaseID); terr != nil {
			return cases.Case{}, terr
		}
		return s.Cases.Get(ctx, req.CaseID)
	}
	if err != nil {
		return cases.Case{}, err
	}
	return updated, nil
}

// finalizeAsync waits for the callback (or a poll hit) to land in the
// thread store, then resolves the run exactly like the synchronous path.
func (s *Service) finalizeAsync(ctx context.Context, requestID, threadID string) {
	defer func() {
		if r := recover(); r != nil {
			s.failRequest(context.Background(), requestID, threadID, fmt.Errorf("panic: %v", r))
		}
	}()

	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := s.PollDeadline
	if deadline <= 0 {
		deadline = defaultPollDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for {
		tr, err := s.Threads.Get(ctx, threadID)
		if err == nil {
			switch tr.Status {
			case mindstudio.ThreadDone:
				req, err := s.Repo.GetRequest(ctx, requestID)
				if err != nil {
					telemetry.Error("analysis.finalize_lookup_failed", map[string]any{
						"analysis_request_id": requestID,
						"error":               err.Error(),
					})
					return
				}
				if req.Status != RequestPending {
					return
				}
				if _, _, err := s.complete(ctx, req, threadID, tr.Output); err != nil && !errors.Is(err, ErrPrecondition) {
					telemetry.Error("analysis.finalize_failed", map[string]any{
						"analysis_request_id": requestID,
						"thread_id":           threadID,
						"error":               err.Error(),
					})
				}
				return
			case mindstudio.ThreadError:
				s.failRequest(ctx, requestID, threadID, fmt.Errorf("%w: %s", ErrWorkerUnavailable, tr.Error))
				return
			}
		}

		select {
		case <-ctx.Done():
			// Persist the timeout outside the expired context.
			s.failRequest(context.Background(), requestID, threadID, ErrTimeout)
			return
		case <-time.After(interval):
		}
	}
}

// Finalize resolves a still-pending request from a stored thread result. It
// is the recovery path for callbacks that arrived while no poller was
// waiting, such as after a process restart.
func (s *Service) Finalize(ctx context.Context, requestID string) (RunOutcome, error) {
	req, err := s.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return RunOutcome{}, err
	}
	if req.Status != RequestPending {
		return RunOutcome{}, fmt.Errorf("%w: request already %s", ErrPrecondition, req.Status)
	}
	if req.ThreadID == "" {
		return RunOutcome{}, ErrStillRunning
	}
	tr, err := s.Threads.Get(ctx, req.ThreadID)
	if err != nil {
		return RunOutcome{}, ErrStillRunning
	}
	switch tr.Status {
	case mindstudio.ThreadDone:
		return s.completeOutcome(ctx, req, req.ThreadID, tr.Output)
	case mindstudio.ThreadError:
		werr := fmt.Errorf("%w: %s", ErrWorkerUnavailable, tr.Error)
		s.failRequest(ctx, requestID, req.ThreadID, werr)
		return RunOutcome{}, werr
	default:
		return RunOutcome{}, ErrStillRunning
	}
}

// ExtractDetails runs the detail-extraction workflow over the narrative and
// documents. The attempt quota is consumed before the worker is called;
// the claim amount is only written back when the confidence clears the
// action threshold.
func (s *Service) ExtractDetails(ctx context.Context, caseID, userID string) (Result, bool, error) {
	if caseID == "" || userID == "" {
		return Result{}, false, errors.New("caseID and userID are required")
	}
	c, err := s.ownedCase(ctx, caseID, userID)
	if err != nil {
		return Result{}, false, err
	}
	if err := s.workerReady(); err != nil {
		return Result{}, false, err
	}

	if s.Quota != nil {
		w, err := s.Quota.Consume(ctx, userID, OperationExtractDetails)
		if errors.Is(err, quota.ErrLimitReached) {
			remaining := w.ResetsAt.Sub(s.nowFn().UTC())
			return Result{}, false, &RateLimitedError{RetryAfterSeconds: int(math.Ceil(remaining.Seconds()))}
		}
		if err != nil {
			return Result{}, false, err
		}
	}

	texts, _ := s.documentTexts(ctx, caseID)
	resp, err := s.Worker.Dispatch(ctx, mindstudio.DispatchRequest{
		WorkerID: s.WorkerID,
		Workflow: workflowExtractDetails,
		Variables: map[string]any{
			"narrative": c.Narrative,
			"documents": texts,
		},
	})
	if err != nil {
		return Result{}, false, translateWorkerError(err)
	}

	res, usable := Normalize(resp.Result)
	if !usable {
		return Result{}, false, ErrInvalidResponseShape
	}
	if err := GateConfidence(res.Confidence, ThresholdDisplay); err != nil {
		return Result{}, false, err
	}

	applied := false
	if res.ClaimAmount != nil && GateConfidence(res.Confidence, ThresholdAction) == nil {
		if _, err := s.Cases.ApplyClaimAmount(ctx, caseID, *res.ClaimAmount); err != nil {
			telemetry.Error("analysis.apply_claim_failed", map[string]any{
				"case_id": caseID,
				"error":   err.Error(),
			})
		} else {
			applied = true
		}
	}
	return res, applied, nil
}

// Get returns one analysis, scoped to its owner.
func (s *Service) Get(ctx context.Context, analysisID, userID string) (Analysis, error) {
	if analysisID == "" {
		return Analysis{}, errors.New("analysisID is required")
	}
	a, err := s.Repo.GetAnalysis(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if a.UserID != userID {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

// List returns all analyses for a case, newest first.
func (s *Service) List(ctx context.Context, caseID, userID string) ([]Analysis, error) {
	if _, err := s.ownedCase(ctx, caseID, userID); err != nil {
		return nil, err
	}
	return s.Repo.ListByCase(ctx, caseID)
}

// Latest returns the most recent analysis for a case.
func (s *Service) Latest(ctx context.Context, caseID, userID string) (Analysis, error) {
	if _, err := s.ownedCase(ctx, caseID, userID); err != nil {
		return Analysis{}, err
	}
	return s.Repo.LatestByCase(ctx, caseID)
}

// RequestStatus returns a dispatch record, scoped to its owner.
func (s *Service) RequestStatus(ctx context.Context, requestID, userID string) (Request, error) {
	if requestID == "" {
		return Request{}, errors.New("requestID is required")
	}
	req, err := s.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.UserID != userID {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (s *Service) ownedCase(ctx context.Context, caseID, userID string) (cases.Case, error) {
	c, err := s.Cases.Get(ctx, caseID)
	if err != nil {
		return cases.Case{}, err
	}
	if c.UserID != userID {
		return cases.Case{}, cases.ErrNotFound
	}
	return c, nil
}

func (s *Service) failRequest(ctx context.Context, requestID, threadID string, cause error) {
	metrics.IncAnalysisFailed()
	code, _ := ClassifyFailure(cause)
	if err := s.Repo.UpdateRequest(ctx, requestID, RequestFailed, threadID, cause.Error()); err != nil {
		telemetry.Error("analysis.request_update_failed", map[string]any{
			"analysis_request_id": requestID,
			"error":               err.Error(),
		})
	}
	telemetry.Error("analysis.failed", map[string]any{
		"request_id":          requestIDFromContext(ctx),
		"analysis_request_id": requestID,
		"thread_id":           threadID,
		"code":                code,
		"error":               cause.Error(),
	})
}

// workerReady rejects inline dispatch paths when no worker client is
// configured, before any attempt is counted or recorded.
func (s *Service) workerReady() error {
	if s.Worker == nil {
		return fmt.Errorf("%w: no worker client configured", ErrWorkerUnavailable)
	}
	return nil
}

func (s *Service) workflowFor(phase Phase) string {
	if s.Workflows != nil {
		if wf, ok := s.Workflows[phase]; ok && wf != "" {
			return wf
		}
	}
	return defaultWorkflows[phase]
}

func (s *Service) nowFn() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// buildVariables composes the worker payload for a phase. The venue check
// gets one free-text description; the full phases get the structured case
// file the worker workflows expect.
func (s *Service) buildVariables(ctx context.Context, c cases.Case, phase Phase, opts RunOptions) (map[string]any, error) {
	docs, texts, err := s.caseDocuments(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	if phase == PhaseKantonCheck {
		return map[string]any{
			"caseDescription": composeDescription(c, texts, opts.MissingInfoAnswers),
			"kanton":          c.Kanton,
		}, nil
	}

	parties := make([]map[string]any, 0, len(c.Parties))
	for _, p := range c.Parties {
		parties = append(parties, map[string]any{
			"name": p.Name,
			"role": string(p.Role),
		})
	}
	files := make([]map[string]any, 0, len(docs))
	for i, d := range docs {
		entry := map[string]any{
			"fileName": d.FileName,
			"mimeType": d.MimeType,
		}
		if i < len(texts) && texts[i] != "" {
			entry["text"] = texts[i]
		}
		files = append(files, entry)
	}

	variables := map[string]any{
		"caseId":      c.ID,
		"narrative":   c.Narrative,
		"claimAmount": c.ClaimAmount,
		"currency":    c.Currency,
		"kanton":      c.Kanton,
		"parties":     parties,
		"files":       files,
	}

	var previous *Analysis
	if prev, err := s.Repo.LatestByCase(ctx, c.ID); err == nil {
		previous = &prev
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if previous != nil {
		variables["previousAnalysis"] = previous.Result
	}
	if len(opts.MissingInfoAnswers) > 0 {
		variables["missingInfoAnswers"] = opts.MissingInfoAnswers
	}
	if phase == PhaseSecondRun && previous != nil {
		newUploads := []string{}
		for _, d := range docs {
			if d.CreatedAt.After(previous.CreatedAt) {
				newUploads = append(newUploads, d.FileName)
			}
		}
		if len(newUploads) > 0 {
			variables["newUploads"] = newUploads
		}
	}
	return variables, nil
}

func (s *Service) caseDocuments(ctx context.Context, caseID string) ([]documents.Document, []string, error) {
	if s.Docs == nil {
		return nil, nil, nil
	}
	docs, err := s.Docs.List(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		// Unextractable documents still appear in the file list, they
		// just carry no text.
		if text, err := s.Docs.ExtractedText(ctx, d); err == nil {
			texts[i] = text
		}
	}
	return docs, texts, nil
}

func (s *Service) documentTexts(ctx context.Context, caseID string) ([]string, error) {
	_, texts, err := s.caseDocuments(ctx, caseID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func composeDescription(c cases.Case, texts []string, answers map[string]string) string {
	var b strings.Builder
	b.WriteString(c.Title)
	b.WriteString("\n\n")
	if c.Narrative != "" {
		b.WriteString(c.Narrative)
		b.WriteString("\n\n")
	}
	if c.ClaimAmount > 0 {
		fmt.Fprintf(&b, "Claim amount: %.2f %s\n", c.ClaimAmount, c.Currency)
	}
	if c.Kanton != "" {
		fmt.Fprintf(&b, "Kanton: %s\n", c.Kanton)
	}
	for _, p := range c.Parties {
		fmt.Fprintf(&b, "Party (%s): %s\n", p.Role, p.Name)
	}
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "Answer to %s: %s\n", id, answers[id])
	}
	for _, text := range texts {
		if text == "" {
			continue
		}
		b.WriteString("\n--- Document ---\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func translateWorkerError(err error) error {
	switch {
	case errors.Is(err, mindstudio.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}
}
