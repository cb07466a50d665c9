package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dispute-backend/internal/cases"
	"dispute-backend/internal/mindstudio"
	"dispute-backend/internal/queue"
	"dispute-backend/internal/quota"
)

type stubDispatcher struct {
	mu       sync.Mutex
	requests []mindstudio.DispatchRequest
	resp     mindstudio.DispatchResponse
	err      error
}

func (d *stubDispatcher) Dispatch(ctx context.Context, req mindstudio.DispatchRequest) (mindstudio.DispatchResponse, error) {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return d.resp, d.err
}

func (d *stubDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *stubDispatcher) lastRequest(t *testing.T) mindstudio.DispatchRequest {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.requests) == 0 {
		t.Fatal("no dispatches recorded")
	}
	return d.requests[len(d.requests)-1]
}

type stubQueue struct {
	mu   sync.Mutex
	sent []queue.Message
	err  error
}

func (q *stubQueue) Send(ctx context.Context, msg queue.Message) error {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, msg)
	return q.err
}

type fixture struct {
	svc     *Service
	cases   *cases.Service
	worker  *stubDispatcher
	threads *mindstudio.MemoryThreadStore
	caseID  string
	userID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	caseSvc := cases.NewService(cases.NewMemoryRepo())
	worker := &stubDispatcher{resp: mindstudio.DispatchResponse{
		Result: json.RawMessage(`{"summary": "ok", "confidence": 0.9}`),
	}}
	threads := mindstudio.NewMemoryThreadStore()

	svc := &Service{
		Repo:    NewMemoryRepo(),
		Cases:   caseSvc,
		Worker:  worker,
		Threads: threads,
		Limiter: NewLimiter(5, time.Minute, nil),
	}

	c, err := caseSvc.Create(context.Background(), "user-1", "Unpaid invoice", "They never paid the invoice.", 950, "CHF", "ZH", []cases.Party{
		{Name: "Anna Keller", Role: cases.RoleClaimant},
		{Name: "Muster AG", Role: cases.RoleRespondent},
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	return &fixture{svc: svc, cases: caseSvc, worker: worker, threads: threads, caseID: c.ID, userID: "user-1"}
}

func TestRunSyncCompletesAndAdvancesCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Async {
		t.Fatal("expected synchronous outcome")
	}
	if out.Analysis == nil || out.Analysis.Version != 1 {
		t.Fatalf("analysis = %+v", out.Analysis)
	}
	if string(out.Analysis.Raw) != `{"summary": "ok", "confidence": 0.9}` {
		t.Fatalf("raw not stored verbatim: %s", out.Analysis.Raw)
	}
	if out.Case == nil || out.Case.Status != cases.StatusAnalyzed {
		t.Fatalf("case = %+v", out.Case)
	}

	req, err := f.svc.Repo.GetRequest(ctx, out.RequestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if req.Status != RequestCompleted {
		t.Fatalf("request status = %s, want completed", req.Status)
	}
}

func TestRunVersionsAreSequential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseSecondRun, RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Analysis.Version != 1 || second.Analysis.Version != 2 {
		t.Fatalf("versions = %d, %d", first.Analysis.Version, second.Analysis.Version)
	}
}

func TestSecondRunRequiresPriorAnalysis(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseSecondRun, RunOptions{})
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
	if f.worker.calls() != 0 {
		t.Fatal("precondition failure must not reach the worker")
	}
}

func TestRunUnknownPhaseRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), f.caseID, f.userID, Phase("deep_dive"), RunOptions{})
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
}

func TestRunRateLimited(t *testing.T) {
	f := newFixture(t)
	f.svc.Limiter = NewLimiter(1, time.Minute, nil)
	ctx := context.Background()

	if _, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	_, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rle *RateLimitedError
	if !errors.As(err, &rle) || rle.RetryAfterSeconds <= 0 {
		t.Fatalf("expected retry-after hint, got %v", err)
	}
	if f.worker.calls() != 1 {
		t.Fatalf("worker calls = %d, want 1", f.worker.calls())
	}
}

func TestRunInvalidResponseShape(t *testing.T) {
	f := newFixture(t)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"noise": true}`)}
	ctx := context.Background()

	_, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if !errors.Is(err, ErrInvalidResponseShape) {
		t.Fatalf("expected ErrInvalidResponseShape, got %v", err)
	}

	c, err := f.cases.Get(ctx, f.caseID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != cases.StatusNewIntake {
		t.Fatalf("case moved to %s on failed run", c.Status)
	}
}

func TestRunLowConfidenceRejected(t *testing.T) {
	f := newFixture(t)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"summary": "weak", "confidence": 0.49}`)}

	_, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if !errors.Is(err, ErrLowConfidence) {
		t.Fatalf("expected ErrLowConfidence, got %v", err)
	}

	if _, err := f.svc.Repo.LatestByCase(context.Background(), f.caseID); !errors.Is(err, ErrNotFound) {
		t.Fatal("rejected result must not be persisted as an analysis")
	}
}

func TestRunWorkerTimeoutTranslated(t *testing.T) {
	f := newFixture(t)
	f.worker.err = mindstudio.ErrTimeout

	_, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRunWorkerFailureTranslated(t *testing.T) {
	f := newFixture(t)
	f.worker.err = errors.New("connection refused")

	_, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if !errors.Is(err, ErrWorkerUnavailable) {
		t.Fatalf("expected ErrWorkerUnavailable, got %v", err)
	}
}

func TestKantonCheckUnsuitableAnnotatesWithoutAdvance(t *testing.T) {
	f := newFixture(t)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"suitable": false, "summary": "Wrong canton for this claim."}`)}
	ctx := context.Background()

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseKantonCheck, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Case.Status != cases.StatusNewIntake {
		t.Fatalf("status = %s, unsuitable verdict must not advance", out.Case.Status)
	}
	if out.Case.CurrentStep != "Venue check complete" {
		t.Fatalf("currentStep = %q", out.Case.CurrentStep)
	}
}

func TestKantonCheckSuitableAdvances(t *testing.T) {
	f := newFixture(t)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"suitable": true, "summary": "Canton fits."}`)}

	out, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseKantonCheck, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Case.Status != cases.StatusAnalyzed {
		t.Fatalf("status = %s, want ANALYZED", out.Case.Status)
	}
}

func TestKantonCheckSkipsSynthesizer(t *testing.T) {
	f := newFixture(t)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"suitable": true}`)}

	out, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseKantonCheck, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Analysis.Result.SynthesizedSections) != 0 {
		t.Fatalf("venue check must stay sparse, got %v", out.Analysis.Result.SynthesizedSections)
	}
}

func TestFullAnalysisSynthesizesEmptySections(t *testing.T) {
	f := newFixture(t)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"summary": "only a summary", "confidence": 0.7}`)}

	out, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Analysis.Result.SynthesizedSections) == 0 {
		t.Fatal("expected synthesized sections")
	}
	if len(out.Analysis.Result.LegalIssues) == 0 {
		t.Fatal("legalIssues should be backfilled")
	}
}

func TestRunDoesNotRegressLateCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, target := range []cases.Status{cases.StatusDocsUploaded, cases.StatusAnalyzed, cases.StatusLetterDrafted} {
		if _, err := f.cases.Advance(ctx, f.caseID, target, "", ""); err != nil {
			t.Fatalf("advance to %s: %v", target, err)
		}
	}

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Case.Status != cases.StatusLetterDrafted {
		t.Fatalf("status = %s, rerun must not regress the case", out.Case.Status)
	}
}

func TestRunRejectsForeignCase(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), f.caseID, "someone-else", PhaseFullAnalysis, RunOptions{})
	if !errors.Is(err, cases.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign case, got %v", err)
	}
}

func TestKantonCheckVariables(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseKantonCheck, RunOptions{
		MissingInfoAnswers: map[string]string{"b-item": "second", "a-item": "first"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	req := f.worker.lastRequest(t)
	if req.Workflow != "kantonCheck" {
		t.Fatalf("workflow = %q", req.Workflow)
	}
	desc, _ := req.Variables["caseDescription"].(string)
	if desc == "" {
		t.Fatal("expected composed case description")
	}
	a := strings.Index(desc, "Answer to a-item: first")
	b := strings.Index(desc, "Answer to b-item: second")
	if a < 0 || b < 0 || a > b {
		t.Fatalf("answers missing or unordered in description:\n%s", desc)
	}
	if req.Variables["kanton"] != "ZH" {
		t.Fatalf("kanton = %v", req.Variables["kanton"])
	}
}

func TestSecondRunVariablesCarryPreviousAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseSecondRun, RunOptions{}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	req := f.worker.lastRequest(t)
	if req.Workflow != "secondAnalysis" {
		t.Fatalf("workflow = %q", req.Workflow)
	}
	if _, ok := req.Variables["previousAnalysis"]; !ok {
		t.Fatal("second run must carry the previous analysis")
	}
}

func TestRunAsyncFinalizesFromThreadStore(t *testing.T) {
	f := newFixture(t)
	f.svc.CallbackURL = "https://api.example.test/api/v1/mindstudio/callback"
	f.svc.PollInterval = 5 * time.Millisecond
	f.svc.PollDeadline = 2 * time.Second
	f.worker.resp = mindstudio.DispatchResponse{ThreadID: "th-1"}
	ctx := context.Background()

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{Async: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Async || out.ThreadID != "th-1" {
		t.Fatalf("outcome = %+v", out)
	}
	if f.worker.lastRequest(t).CallbackURL == "" {
		t.Fatal("async dispatch must carry the callback URL")
	}

	if err := f.threads.Complete(ctx, "th-1", json.RawMessage(`{"summary": "late result", "confidence": 0.8}`), nil); err != nil {
		t.Fatalf("complete thread: %v", err)
	}

	waitForRequestStatus(t, f.svc, out.RequestID, RequestCompleted)

	c, err := f.cases.Get(ctx, f.caseID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != cases.StatusAnalyzed {
		t.Fatalf("status = %s, want ANALYZED", c.Status)
	}
}

func TestRunAsyncThreadErrorFailsRequest(t *testing.T) {
	f := newFixture(t)
	f.svc.CallbackURL = "https://api.example.test/api/v1/mindstudio/callback"
	f.svc.PollInterval = 5 * time.Millisecond
	f.svc.PollDeadline = 2 * time.Second
	f.worker.resp = mindstudio.DispatchResponse{ThreadID: "th-2"}
	ctx := context.Background()

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{Async: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := f.threads.Fail(ctx, "th-2", "workflow crashed"); err != nil {
		t.Fatalf("fail thread: %v", err)
	}

	waitForRequestStatus(t, f.svc, out.RequestID, RequestFailed)
}

func TestRunAsyncPollDeadlineTimesOut(t *testing.T) {
	f := newFixture(t)
	f.svc.CallbackURL = "https://api.example.test/api/v1/mindstudio/callback"
	f.svc.PollInterval = 5 * time.Millisecond
	f.svc.PollDeadline = 30 * time.Millisecond
	f.worker.resp = mindstudio.DispatchResponse{ThreadID: "th-3"}

	out, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseFullAnalysis, RunOptions{Async: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	waitForRequestStatus(t, f.svc, out.RequestID, RequestFailed)
	req, _ := f.svc.Repo.GetRequest(context.Background(), out.RequestID)
	if req.Error == "" {
		t.Fatal("expected timeout recorded on the request")
	}
}

func TestRunAsyncInlineResultDespiteCallback(t *testing.T) {
	f := newFixture(t)
	f.svc.CallbackURL = "https://api.example.test/api/v1/mindstudio/callback"
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"summary": "inline after all", "confidence": 0.9}`)}

	out, err := f.svc.Run(context.Background(), f.caseID, f.userID, PhaseFullAnalysis, RunOptions{Async: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Async {
		t.Fatal("inline reply should resolve synchronously")
	}
	if out.Analysis == nil || out.Analysis.Result.Summary != "inline after all" {
		t.Fatalf("analysis = %+v", out.Analysis)
	}
}

func TestFinalizeRecoversPendingRequest(t *testing.T) {
	f := newFixture(t)
	f.svc.CallbackURL = "https://api.example.test/api/v1/mindstudio/callback"
	// A poll interval far beyond the test keeps the background poller out
	// of the way; Finalize has to do the work.
	f.svc.PollInterval = time.Hour
	f.svc.PollDeadline = time.Hour
	f.worker.resp = mindstudio.DispatchResponse{ThreadID: "th-4"}
	ctx := context.Background()

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{Async: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := f.svc.Finalize(ctx, out.RequestID); !errors.Is(err, ErrStillRunning) {
		t.Fatalf("expected ErrStillRunning before completion, got %v", err)
	}

	if err := f.threads.Complete(ctx, "th-4", json.RawMessage(`{"summary": "recovered", "confidence": 0.8}`), nil); err != nil {
		t.Fatalf("complete thread: %v", err)
	}

	finalized, err := f.svc.Finalize(ctx, out.RequestID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized.Analysis == nil || finalized.Analysis.Result.Summary != "recovered" {
		t.Fatalf("analysis = %+v", finalized.Analysis)
	}
}

func TestRunQueuedEnqueuesAndProcesses(t *testing.T) {
	f := newFixture(t)
	q := &stubQueue{}
	f.svc.Queue = q
	ctx := context.Background()

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{Async: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Async {
		t.Fatal("queued run must report async")
	}
	if len(q.sent) != 1 || q.sent[0].RequestID != out.RequestID || q.sent[0].CaseID != f.caseID {
		t.Fatalf("queued message = %+v", q.sent)
	}
	if f.worker.calls() != 0 {
		t.Fatal("queued run must not dispatch inline")
	}

	if err := f.svc.ProcessRequest(ctx, out.RequestID); err != nil {
		t.Fatalf("process request: %v", err)
	}
	req, err := f.svc.Repo.GetRequest(ctx, out.RequestID)
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != RequestCompleted {
		t.Fatalf("request status = %s", req.Status)
	}

	c, _ := f.cases.Get(ctx, f.caseID)
	if c.Status != cases.StatusAnalyzed {
		t.Fatalf("status = %s, want ANALYZED", c.Status)
	}
}

func TestProcessRequestIdempotentOnRedelivery(t *testing.T) {
	f := newFixture(t)
	q := &stubQueue{}
	f.svc.Queue = q
	ctx := context.Background()

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{Async: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := f.svc.ProcessRequest(ctx, out.RequestID); err != nil {
		t.Fatalf("process request: %v", err)
	}
	if err := f.svc.ProcessRequest(ctx, out.RequestID); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if f.worker.calls() != 1 {
		t.Fatalf("worker calls = %d, redelivery must not re-dispatch", f.worker.calls())
	}
}

func TestExtractDetailsAppliesConfidentAmount(t *testing.T) {
	f := newFixture(t)
	f.svc.Quota = quota.NewService(3, time.Hour)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"claim_amount": "1.234,56", "confidence": 0.9}`)}
	ctx := context.Background()

	res, applied, err := f.svc.ExtractDetails(ctx, f.caseID, f.userID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !applied {
		t.Fatal("amount at 0.9 confidence must be applied")
	}
	if res.ClaimAmount == nil || *res.ClaimAmount != 1234.56 {
		t.Fatalf("claimAmount = %v", res.ClaimAmount)
	}

	c, _ := f.cases.Get(ctx, f.caseID)
	if c.ClaimAmount != 1234.56 {
		t.Fatalf("case claimAmount = %v", c.ClaimAmount)
	}
}

func TestExtractDetailsDisplayOnlyBand(t *testing.T) {
	f := newFixture(t)
	f.svc.Quota = quota.NewService(3, time.Hour)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"claim_amount": 500, "confidence": 0.55}`)}
	ctx := context.Background()

	res, applied, err := f.svc.ExtractDetails(ctx, f.caseID, f.userID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if applied {
		t.Fatal("0.55 confidence must not write back")
	}
	if res.ClaimAmount == nil || *res.ClaimAmount != 500 {
		t.Fatalf("claimAmount = %v", res.ClaimAmount)
	}

	c, _ := f.cases.Get(ctx, f.caseID)
	if c.ClaimAmount != 950 {
		t.Fatalf("case claimAmount changed to %v", c.ClaimAmount)
	}
}

func TestExtractDetailsLowConfidenceRejected(t *testing.T) {
	f := newFixture(t)
	f.svc.Quota = quota.NewService(3, time.Hour)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"claim_amount": 500, "confidence": 0.4}`)}

	_, _, err := f.svc.ExtractDetails(context.Background(), f.caseID, f.userID)
	if !errors.Is(err, ErrLowConfidence) {
		t.Fatalf("expected ErrLowConfidence, got %v", err)
	}
}

func TestExtractDetailsQuotaExhausted(t *testing.T) {
	f := newFixture(t)
	f.svc.Quota = quota.NewService(1, time.Hour)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"claim_amount": 500, "confidence": 0.9}`)}
	ctx := context.Background()

	if _, _, err := f.svc.ExtractDetails(ctx, f.caseID, f.userID); err != nil {
		t.Fatalf("first extract: %v", err)
	}
	_, _, err := f.svc.ExtractDetails(ctx, f.caseID, f.userID)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if f.worker.calls() != 1 {
		t.Fatalf("worker calls = %d, exhausted quota must not dispatch", f.worker.calls())
	}
}

func TestOwnershipScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := f.svc.Get(ctx, out.Analysis.ID, "intruder"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign analysis read, got %v", err)
	}
	if _, err := f.svc.RequestStatus(ctx, out.RequestID, "intruder"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign request read, got %v", err)
	}
	if _, err := f.svc.List(ctx, f.caseID, "intruder"); !errors.Is(err, cases.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign list, got %v", err)
	}
}

func TestRunWithoutWorkerConfigured(t *testing.T) {
	f := newFixture(t)
	f.svc.Worker = nil
	f.svc.Limiter = NewLimiter(1, time.Minute, nil)
	ctx := context.Background()

	_, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if !errors.Is(err, ErrWorkerUnavailable) {
		t.Fatalf("expected ErrWorkerUnavailable, got %v", err)
	}

	// The rejected run must not consume the single cooldown attempt or
	// leave a pending record behind.
	f.svc.Worker = f.worker
	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if err != nil {
		t.Fatalf("run after configuring worker: %v", err)
	}
	if out.Analysis == nil || out.Analysis.Version != 1 {
		t.Fatalf("analysis = %+v", out.Analysis)
	}
}

func TestProcessRequestWithoutWorkerStaysPending(t *testing.T) {
	f := newFixture(t)
	f.svc.Queue = &stubQueue{}
	ctx := context.Background()

	out, err := f.svc.RunQueued(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if err != nil {
		t.Fatalf("run queued: %v", err)
	}

	f.svc.Worker = nil
	if err := f.svc.ProcessRequest(ctx, out.RequestID); !errors.Is(err, ErrWorkerUnavailable) {
		t.Fatalf("expected ErrWorkerUnavailable, got %v", err)
	}
	req, err := f.svc.Repo.GetRequest(ctx, out.RequestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if req.Status != RequestPending {
		t.Fatalf("request status = %s, redelivery needs it pending", req.Status)
	}

	f.svc.Worker = f.worker
	if err := f.svc.ProcessRequest(ctx, out.RequestID); err != nil {
		t.Fatalf("process after configuring worker: %v", err)
	}
}

func TestExtractDetailsWithoutWorkerKeepsQuota(t *testing.T) {
	f := newFixture(t)
	f.svc.Worker = nil
	f.svc.Quota = quota.NewService(1, time.Hour)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(`{"claim_amount": 500, "confidence": 0.9}`)}
	ctx := context.Background()

	_, _, err := f.svc.ExtractDetails(ctx, f.caseID, f.userID)
	if !errors.Is(err, ErrWorkerUnavailable) {
		t.Fatalf("expected ErrWorkerUnavailable, got %v", err)
	}

	f.svc.Worker = f.worker
	if _, _, err := f.svc.ExtractDetails(ctx, f.caseID, f.userID); err != nil {
		t.Fatalf("extract after configuring worker: %v", err)
	}
}

func TestFinalizersResolveRequestOnce(t *testing.T) {
	f := newFixture(t)
	f.svc.Queue = &stubQueue{}
	ctx := context.Background()

	out, err := f.svc.RunQueued(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if err != nil {
		t.Fatalf("run queued: %v", err)
	}
	req, err := f.svc.Repo.GetRequest(ctx, out.RequestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}

	// Two finalizers holding the same pending snapshot, as when a status
	// poll races the background waiter.
	raw := json.RawMessage(`{"summary": "ok", "confidence": 0.9}`)
	if _, _, err := f.svc.complete(ctx, req, "th-1", raw); err != nil {
		t.Fatalf("first finalizer: %v", err)
	}
	if _, _, err := f.svc.complete(ctx, req, "th-1", raw); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("second finalizer must lose the claim, got %v", err)
	}

	count, err := f.svc.Repo.CountByCase(ctx, f.caseID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("analyses = %d, want exactly one", count)
	}
}

func TestFullAnalysisMissingInfoRoutesBackToUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The first run leaves the case at ANALYZED.
	if _, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(
		`{"summary": "ok", "missing_information_requirements": ["Proof of delivery"]}`)}
	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseSecondRun, RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if out.Case.Status != cases.StatusDocsUploaded {
		t.Fatalf("status = %s, missing information must route back to uploads", out.Case.Status)
	}
	if out.Case.CurrentStep != "Analysis needs more information" {
		t.Fatalf("currentStep = %q", out.Case.CurrentStep)
	}
	if len(out.Analysis.Result.MissingInformation) != 1 {
		t.Fatalf("missingInformation = %+v", out.Analysis.Result.MissingInformation)
	}
}

func TestFullAnalysisMissingInfoBeforeAnalyzedKeepsStatus(t *testing.T) {
	f := newFixture(t)
	f.worker.resp = mindstudio.DispatchResponse{Result: json.RawMessage(
		`{"summary": "ok", "missing_information_requirements": ["Proof of delivery"]}`)}
	ctx := context.Background()

	out, err := f.svc.Run(ctx, f.caseID, f.userID, PhaseFullAnalysis, RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Case.Status != cases.StatusNewIntake {
		t.Fatalf("status = %s, incomplete analysis must not advance the case", out.Case.Status)
	}
	if out.Case.NextActionLabel != "Provide the requested information and run the analysis again" {
		t.Fatalf("nextActionLabel = %q", out.Case.NextActionLabel)
	}
}

func waitForRequestStatus(t *testing.T, svc *Service, requestID, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		req, err := svc.Repo.GetRequest(context.Background(), requestID)
		if err == nil && req.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	req, _ := svc.Repo.GetRequest(context.Background(), requestID)
	t.Fatalf("request %s never reached %s (last: %s, err: %s)", requestID, want, req.Status, req.Error)
}
