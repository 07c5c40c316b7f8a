package app

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopivot/domain/core"
	"gopivot/domain/pivot"
	"gopivot/models"
	"gopivot/ports"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// fakeAnalyzer replays scripted outputs and records every request it saw.
type fakeAnalyzer struct {
	reformulations []*models.ReformulationOutput
	r1             *models.R1Output
	refinement     *models.RefinementOutput
	err            error

	reformulationCalls []ports.ReformulationRequest
}

func (f *fakeAnalyzer) AnalyzeReformulation(ctx context.Context, req ports.ReformulationRequest) (*models.ReformulationOutput, error) {
	f.reformulationCalls = append(f.reformulationCalls, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.reformulations) == 0 {
		return &models.ReformulationOutput{}, nil
	}
	out := f.reformulations[0]
	f.reformulations = f.reformulations[1:]
	return out, nil
}

func (f *fakeAnalyzer) FormalizeR1(ctx context.Context, req ports.R1Request) (*models.R1Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.r1, nil
}

func (f *fakeAnalyzer) AnalyzeRefinement(ctx context.Context, req ports.RefinementRequest) (*models.RefinementOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.refinement, nil
}

// memStore implements the repository ports in memory.
type memStore struct {
	problems map[core.ProblemID]*models.Problem
	visions  map[core.VisionID]*models.Vision
	records  map[string]*models.StageRecord
	pivots   map[core.VisionID]pivot.Model
}

func newMemStore() *memStore {
	return &memStore{
		problems: make(map[core.ProblemID]*models.Problem),
		visions:  make(map[core.VisionID]*models.Vision),
		records:  make(map[string]*models.StageRecord),
		pivots:   make(map[core.VisionID]pivot.Model),
	}
}

func stageKey(problemID core.ProblemID, visionID core.VisionID, stage models.StageKind) string {
	return fmt.Sprintf("%s|%s|%s", problemID, visionID, stage)
}

func (s *memStore) CreateProblem(ctx context.Context, draftText string) (*models.Problem, error) {
	p := &models.Problem{ID: core.ProblemID(core.NewID()), DraftText: draftText, CreatedAt: core.Now()}
	s.problems[p.ID] = p
	return p, nil
}

func (s *memStore) GetProblem(ctx context.Context, id core.ProblemID) (*models.Problem, error) {
	p, ok := s.problems[id]
	if !ok {
		return nil, core.ErrProblemNotFound
	}
	return p, nil
}

func (s *memStore) CommitProblem(ctx context.Context, id core.ProblemID, validatedText string, formal []byte) error {
	p, ok := s.problems[id]
	if !ok {
		return core.ErrProblemNotFound
	}
	p.ValidatedText = validatedText
	p.Formal = formal
	return nil
}

func (s *memStore) DeleteProblem(ctx context.Context, id core.ProblemID) error {
	delete(s.problems, id)
	return nil
}

func (s *memStore) CreateVision(ctx context.Context, problemID core.ProblemID, title, draftText string) (*models.Vision, error) {
	v := &models.Vision{ID: core.VisionID(core.NewID()), ProblemID: problemID, Title: title, DraftText: draftText, CreatedAt: core.Now()}
	s.visions[v.ID] = v
	return v, nil
}

func (s *memStore) GetVision(ctx context.Context, id core.VisionID) (*models.Vision, error) {
	v, ok := s.visions[id]
	if !ok {
		return nil, core.ErrVisionNotFound
	}
	return v, nil
}

func (s *memStore) ListVisions(ctx context.Context, problemID core.ProblemID) ([]*models.Vision, error) {
	var out []*models.Vision
	for _, v := range s.visions {
		if v.ProblemID == problemID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memStore) CommitVision(ctx context.Context, id core.VisionID, validatedText string) error {
	v, ok := s.visions[id]
	if !ok {
		return core.ErrVisionNotFound
	}
	v.ValidatedText = validatedText
	return nil
}

func (s *memStore) DeleteVision(ctx context.Context, id core.VisionID) error {
	v, ok := s.visions[id]
	if !ok {
		return core.ErrVisionNotFound
	}
	delete(s.visions, id)
	delete(s.pivots, id)
	for key, rec := range s.records {
		if rec.VisionID == v.ID {
			delete(s.records, key)
		}
	}
	return nil
}

func (s *memStore) GetStageRecord(ctx context.Context, problemID core.ProblemID, visionID core.VisionID, stage models.StageKind) (*models.StageRecord, error) {
	rec, ok := s.records[stageKey(problemID, visionID, stage)]
	if !ok {
		return nil, core.ErrStageNotFound
	}
	return rec, nil
}

func (s *memStore) SaveStageRecord(ctx context.Context, record *models.StageRecord) error {
	s.records[stageKey(record.ProblemID, record.VisionID, record.Stage)] = record
	return nil
}

func (s *memStore) GetPivot(ctx context.Context, visionID core.VisionID) (*pivot.Model, error) {
	m, ok := s.pivots[visionID]
	if !ok {
		return nil, core.ErrPivotNotFound
	}
	return &m, nil
}

func (s *memStore) SavePivot(ctx context.Context, visionID core.VisionID, model pivot.Model) error {
	s.pivots[visionID] = model
	return nil
}

const strongDraft = "I currently have thirty thousand euros saved and I wonder whether I should buy an apartment in the city within five years or keep renting while investing the monthly surplus."

// strongReformulation is long enough and lexically distant from strongDraft.
const strongReformulation = "Over the coming half decade, the objective is choosing between acquiring a home or continuing as a tenant. Savings of 30000 exist today; any excess income could either fund a mortgage deposit or be placed into diversified index portfolios, depending on risk appetite and market timing."

func newTestService(analyzer *fakeAnalyzer, store *memStore) *RefinementService {
	return NewRefinementService(analyzer, store, store, store, store)
}

func setupProblem(t *testing.T, store *memStore, formal string) *models.Problem {
	t.Helper()
	p, err := store.CreateProblem(context.Background(), strongDraft)
	require.NoError(t, err)
	p.ValidatedText = strongReformulation
	if formal != "" {
		p.Formal = []byte(formal)
	}
	require.NoError(t, store.SaveStageRecord(context.Background(), &models.StageRecord{
		ID:            core.NewID(),
		ProblemID:     p.ID,
		Stage:         models.StageProblem,
		ValidatedText: p.ValidatedText,
		CommittedAt:   core.Now(),
	}))
	return p
}

func setupVision(t *testing.T, store *memStore, problemID core.ProblemID) *models.Vision {
	t.Helper()
	v, err := store.CreateVision(context.Background(), problemID, "Buy", strongDraft)
	require.NoError(t, err)
	v.ValidatedText = strongReformulation
	require.NoError(t, store.SaveStageRecord(context.Background(), &models.StageRecord{
		ID:            core.NewID(),
		ProblemID:     problemID,
		VisionID:      v.ID,
		Stage:         models.StageVision,
		ValidatedText: v.ValidatedText,
		CommittedAt:   core.Now(),
	}))
	return v
}

func setupR1(t *testing.T, store *memStore, problemID core.ProblemID, visionID core.VisionID) {
	t.Helper()
	require.NoError(t, store.SaveStageRecord(context.Background(), &models.StageRecord{
		ID:            core.NewID(),
		ProblemID:     problemID,
		VisionID:      visionID,
		Stage:         models.StageR1,
		ValidatedText: "R1 validated",
		Formal:        []byte(`{"stockName":"Savings","stockUnit":"EUR","stockInitialName":"Initial savings","stockInitialValue":20000,"stockInitialMode":"fixed","inflowName":"Salary savings","outflowName":"Rent","horizonYears":10}`),
		CommittedAt:   core.Now(),
	}))
	require.NoError(t, store.SavePivot(context.Background(), visionID, pivot.NewFromR1(pivot.R1Input{
		VisionID:     visionID,
		StockName:    "Savings",
		StockUnit:    "EUR",
		InflowNames:  []string{"Salary savings"},
		OutflowNames: []string{"Rent"},
		Horizon:      10,
		TimeUnit:     pivot.UnitYear,
		StockInitial: floatPtr(20000),
	})))
}

// TestAnalyzeTextRejectsWeakDraft tests that a weak draft never reaches the analyzer
func TestAnalyzeTextRejectsWeakDraft(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p, err := store.CreateProblem(context.Background(), "too short")
	require.NoError(t, err)

	result, err := svc.AnalyzeText(context.Background(), AnalyzeTextRequest{
		Stage:     models.StageProblem,
		ProblemID: p.ID,
		DraftText: "too short",
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Message)
	assert.Empty(t, analyzer.reformulationCalls, "weak input must be rejected before any model call")
}

// TestAnalyzeTextCountsCharacters tests that accented drafts are measured in
// characters, not bytes
func TestAnalyzeTextCountsCharacters(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p, err := store.CreateProblem(context.Background(), "accented")
	require.NoError(t, err)

	// 16 words and a byte length past the minimum, but only 63 characters.
	accented := strings.TrimSpace(strings.Repeat("été ", 16))
	result, err := svc.AnalyzeText(context.Background(), AnalyzeTextRequest{
		Stage:     models.StageProblem,
		ProblemID: p.ID,
		DraftText: accented,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Empty(t, analyzer.reformulationCalls)
}

// TestAnalyzeTextAcceptsStrongReformulation tests the happy path
func TestAnalyzeTextAcceptsStrongReformulation(t *testing.T) {
	analyzer := &fakeAnalyzer{
		reformulations: []*models.ReformulationOutput{
			{Reformulation: strongReformulation, Remarks: []string{"goal restated"}},
		},
	}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p, err := store.CreateProblem(context.Background(), strongDraft)
	require.NoError(t, err)

	result, err := svc.AnalyzeText(context.Background(), AnalyzeTextRequest{
		Stage:     models.StageProblem,
		ProblemID: p.ID,
		DraftText: strongDraft,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, strongReformulation, result.Reformulation)
	assert.Len(t, analyzer.reformulationCalls, 1)
	assert.Empty(t, analyzer.reformulationCalls[0].RetryNudge)
}

// TestAnalyzeTextRetriesOnceWithNudge tests the bounded retry protocol
func TestAnalyzeTextRetriesOnceWithNudge(t *testing.T) {
	analyzer := &fakeAnalyzer{
		reformulations: []*models.ReformulationOutput{
			{Reformulation: strongDraft + " again with minor edits only for padding purposes beyond the length limit threshold."},
			{Reformulation: strongReformulation},
		},
	}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p, err := store.CreateProblem(context.Background(), strongDraft)
	require.NoError(t, err)

	result, err := svc.AnalyzeText(context.Background(), AnalyzeTextRequest{
		Stage:     models.StageProblem,
		ProblemID: p.ID,
		DraftText: strongDraft,
	})
	require.NoError(t, err)
	assert.True(t, result.OK, "the retry's strong answer should be accepted")
	require.Len(t, analyzer.reformulationCalls, 2)
	assert.Empty(t, analyzer.reformulationCalls[0].RetryNudge)
	assert.NotEmpty(t, analyzer.reformulationCalls[1].RetryNudge, "retry must carry the nudge")
}

// TestAnalyzeTextTerminalFailure tests that two weak answers end the attempt
func TestAnalyzeTextTerminalFailure(t *testing.T) {
	weakEcho := strongDraft + " again with minor edits only for padding purposes beyond the length limit threshold."
	analyzer := &fakeAnalyzer{
		reformulations: []*models.ReformulationOutput{
			{Reformulation: weakEcho},
			{Reformulation: weakEcho},
		},
	}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p, err := store.CreateProblem(context.Background(), strongDraft)
	require.NoError(t, err)

	result, err := svc.AnalyzeText(context.Background(), AnalyzeTextRequest{
		Stage:     models.StageProblem,
		ProblemID: p.ID,
		DraftText: strongDraft,
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Message)
	assert.Len(t, analyzer.reformulationCalls, 2, "exactly one retry, never more")
}

// TestAnalyzeTextRefusesLockedStage tests the committed-stage lock
func TestAnalyzeTextRefusesLockedStage(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")

	_, err := svc.AnalyzeText(context.Background(), AnalyzeTextRequest{
		Stage:     models.StageProblem,
		ProblemID: p.ID,
		DraftText: strongDraft,
	})
	assert.ErrorIs(t, err, core.ErrStageLocked)
	assert.Empty(t, analyzer.reformulationCalls)
}

// TestCommitTextStageLocks tests that commit is one-shot per stage
func TestCommitTextStageLocks(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p, err := store.CreateProblem(context.Background(), strongDraft)
	require.NoError(t, err)

	req := AnalyzeTextRequest{Stage: models.StageProblem, ProblemID: p.ID}
	record, err := svc.CommitTextStage(context.Background(), req, strongReformulation, map[string]any{"initialCapital": 30000.0})
	require.NoError(t, err)
	assert.Equal(t, strongReformulation, record.ValidatedText)
	assert.Equal(t, strongReformulation, store.problems[p.ID].ValidatedText)

	_, err = svc.CommitTextStage(context.Background(), req, "second attempt", nil)
	assert.ErrorIs(t, err, core.ErrStageLocked)
}

// TestCommitVisionRequiresProblem tests stage ordering
func TestCommitVisionRequiresProblem(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p, err := store.CreateProblem(context.Background(), strongDraft)
	require.NoError(t, err)
	v, err := store.CreateVision(context.Background(), p.ID, "Buy", strongDraft)
	require.NoError(t, err)

	_, err = svc.CommitTextStage(context.Background(), AnalyzeTextRequest{
		Stage:     models.StageVision,
		ProblemID: p.ID,
		VisionID:  v.ID,
	}, strongReformulation, nil)
	assert.ErrorIs(t, err, core.ErrStageOutOfOrder)
}

// TestFormalizeR1DefaultsHorizon tests the horizon default and invariant wiring
func TestFormalizeR1DefaultsHorizon(t *testing.T) {
	analyzer := &fakeAnalyzer{
		r1: &models.R1Output{
			Reformulation: "Formal restatement of the savings model.",
			Formal: models.R1Formal{
				StockName:         "Savings",
				StockUnit:         "EUR",
				StockInitialValue: floatPtr(20000),
				InflowName:        "Salary savings",
				OutflowName:       "Rent",
			},
		},
	}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v := setupVision(t, store, p.ID)

	proposal, err := svc.FormalizeR1(context.Background(), FormalizeR1Request{ProblemID: p.ID, VisionID: v.ID})
	require.NoError(t, err)
	assert.True(t, proposal.OK)
	require.NotNil(t, proposal.Formal.HorizonYears)
	assert.Equal(t, 10, *proposal.Formal.HorizonYears)
}

// TestFormalizeR1HorizonFromProblemFormal tests that a loose problem-stage
// horizon beats the default
func TestFormalizeR1HorizonFromProblemFormal(t *testing.T) {
	analyzer := &fakeAnalyzer{
		r1: &models.R1Output{
			Formal: models.R1Formal{
				StockName:  "Savings",
				InflowName: "Salary savings",
			},
		},
	}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, `{"horizonYears": 7.9}`)
	v := setupVision(t, store, p.ID)

	proposal, err := svc.FormalizeR1(context.Background(), FormalizeR1Request{ProblemID: p.ID, VisionID: v.ID})
	require.NoError(t, err)
	require.NotNil(t, proposal.Formal.HorizonYears)
	assert.Equal(t, 7, *proposal.Formal.HorizonYears, "loose horizon is floored and sanitized")
}

// TestFormalizeR1CapitalViolation tests the capital ceiling as a value, not an error
func TestFormalizeR1CapitalViolation(t *testing.T) {
	analyzer := &fakeAnalyzer{
		r1: &models.R1Output{
			Formal: models.R1Formal{
				StockName:         "Savings",
				StockInitialValue: floatPtr(25000),
				HorizonYears:      intPtr(10),
			},
		},
	}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, `{"initialCapital": 20000}`)
	v := setupVision(t, store, p.ID)

	proposal, err := svc.FormalizeR1(context.Background(), FormalizeR1Request{ProblemID: p.ID, VisionID: v.ID})
	require.NoError(t, err)
	assert.False(t, proposal.OK)
	assert.False(t, proposal.Check.OK)
	assert.NotEmpty(t, proposal.Check.Errors)
}

// TestCommitR1CreatesPivot tests that committing R1 materializes the pivot
func TestCommitR1CreatesPivot(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v := setupVision(t, store, p.ID)

	formal := models.R1Formal{
		StockName:         "Savings",
		StockUnit:         "EUR",
		StockInitialValue: floatPtr(20000),
		StockInitialMode:  "fixed",
		InflowName:        "Salary savings",
		OutflowName:       "Rent",
		HorizonYears:      intPtr(12),
	}
	proposal, err := svc.CommitR1(context.Background(), FormalizeR1Request{ProblemID: p.ID, VisionID: v.ID}, "R1 validated", formal)
	require.NoError(t, err)
	assert.True(t, proposal.OK)

	model, err := store.GetPivot(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Savings", model.Stock.Name)
	assert.Equal(t, 12, model.Time.Horizon)
	assert.Equal(t, pivot.UnitYear, model.Time.Unit)
	require.Len(t, model.Inflows, 1)
	require.Len(t, model.Outflows, 1)
	assert.Equal(t, 20000.0, *model.Stock.Initial)

	// R1 is now locked.
	_, err = svc.CommitR1(context.Background(), FormalizeR1Request{ProblemID: p.ID, VisionID: v.ID}, "again", formal)
	assert.ErrorIs(t, err, core.ErrStageLocked)
}

// TestCommitR1RequiresVision tests stage ordering for R1
func TestCommitR1RequiresVision(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v, err := store.CreateVision(context.Background(), p.ID, "Buy", strongDraft)
	require.NoError(t, err)

	_, err = svc.CommitR1(context.Background(), FormalizeR1Request{ProblemID: p.ID, VisionID: v.ID}, "R1", models.R1Formal{})
	assert.ErrorIs(t, err, core.ErrStageOutOfOrder)
}

// TestAnalyzeRefinementNotEnoughInformation tests the refusal path
func TestAnalyzeRefinementNotEnoughInformation(t *testing.T) {
	analyzer := &fakeAnalyzer{
		refinement: &models.RefinementOutput{HasEnoughInformation: false},
	}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v := setupVision(t, store, p.ID)
	setupR1(t, store, p.ID, v.ID)

	proposal, err := svc.AnalyzeRefinement(context.Background(), RefineStageRequest{
		ProblemID: p.ID,
		VisionID:  v.ID,
		Stage:     models.StageR2,
		DraftText: "something vague",
	})
	require.NoError(t, err)
	assert.False(t, proposal.OK)
	assert.Contains(t, proposal.Remarks, "Not enough information.")
}

// TestAnalyzeRefinementChecksDelta tests post-delta invariant checking
func TestAnalyzeRefinementChecksDelta(t *testing.T) {
	analyzer := &fakeAnalyzer{
		refinement: &models.RefinementOutput{
			HasEnoughInformation: true,
			Delta:                pivot.Delta{SetHorizon: intPtr(8)},
		},
	}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v := setupVision(t, store, p.ID)
	setupR1(t, store, p.ID, v.ID)

	proposal, err := svc.AnalyzeRefinement(context.Background(), RefineStageRequest{
		ProblemID: p.ID,
		VisionID:  v.ID,
		Stage:     models.StageR2,
		DraftText: "shorten the horizon to eight years",
	})
	require.NoError(t, err)
	assert.False(t, proposal.OK, "horizon is frozen after R1")
	assert.NotEmpty(t, proposal.Check.Errors)
}

// TestCommitRefinementAppendsRecord tests the full refinement commit
func TestCommitRefinementAppendsRecord(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v := setupVision(t, store, p.ID)
	setupR1(t, store, p.ID, v.ID)

	delta := pivot.Delta{
		SetFlowValues: []pivot.FlowValueUpdate{
			{Side: pivot.SideIn, Name: "Salary savings", Value: floatPtr(3000)},
			{Side: pivot.SideOut, Name: "Rent", Value: floatPtr(2500)},
		},
	}
	additions := models.RefinementAdditions{
		FlowDefinitions: []string{"Salary savings is the monthly amount set aside."},
		Assumptions:     []string{"Rent stays flat over the horizon."},
	}
	proposal, err := svc.CommitRefinement(context.Background(), RefineStageRequest{
		ProblemID: p.ID,
		VisionID:  v.ID,
		Stage:     models.StageR2,
	}, "both flows are now valued", delta, additions)
	require.NoError(t, err)
	assert.True(t, proposal.OK)
	assert.Equal(t, []string{
		"Salary savings is the monthly amount set aside.",
		"Rent stays flat over the horizon.",
	}, proposal.Remarks, "advisory additions surface as remarks")

	model, err := store.GetPivot(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, model.ValidatedRefinements, 1)
	assert.Equal(t, "both flows are now valued", model.ValidatedRefinements[0].Text)
	assert.Equal(t, 3000.0, *model.Inflows[0].Value)
	assert.Equal(t, 2500.0, *model.Outflows[0].Value)
	assert.True(t, pivot.CanSimulateConstants(*model))
}

// TestCommitRefinementRequiresPriorStage tests R3 before R2 is refused
func TestCommitRefinementRequiresPriorStage(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v := setupVision(t, store, p.ID)
	setupR1(t, store, p.ID, v.ID)

	_, err := svc.CommitRefinement(context.Background(), RefineStageRequest{
		ProblemID: p.ID,
		VisionID:  v.ID,
		Stage:     models.StageR3,
	}, "text", pivot.Delta{}, models.RefinementAdditions{})
	assert.ErrorIs(t, err, core.ErrStageOutOfOrder)
}

// TestCommitRefinementOrderedBeyondR3 tests that every rN requires r(N-1)
func TestCommitRefinementOrderedBeyondR3(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v := setupVision(t, store, p.ID)
	setupR1(t, store, p.ID, v.ID)

	commit := func(stage models.StageKind) error {
		_, err := svc.CommitRefinement(context.Background(), RefineStageRequest{
			ProblemID: p.ID,
			VisionID:  v.ID,
			Stage:     stage,
		}, string(stage)+" validated", pivot.Delta{}, models.RefinementAdditions{})
		return err
	}

	// r4 directly after R1 skips r2 and r3.
	assert.ErrorIs(t, commit(models.StageKind("r4")), core.ErrStageOutOfOrder)

	require.NoError(t, commit(models.StageR2))
	assert.ErrorIs(t, commit(models.StageKind("r4")), core.ErrStageOutOfOrder, "r3 still uncommitted")

	require.NoError(t, commit(models.StageR3))
	require.NoError(t, commit(models.StageKind("r4")))
	assert.ErrorIs(t, commit(models.StageKind("r6")), core.ErrStageOutOfOrder, "r5 still uncommitted")
}

// TestDeleteVisionCascades tests that deletion removes stage records and pivot
func TestDeleteVisionCascades(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v := setupVision(t, store, p.ID)
	setupR1(t, store, p.ID, v.ID)

	require.NoError(t, svc.DeleteVision(context.Background(), v.ID))

	_, err := store.GetVision(context.Background(), v.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.GetPivot(context.Background(), v.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.GetStageRecord(context.Background(), p.ID, v.ID, models.StageR1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

// TestStageLocks tests the lock report
func TestStageLocks(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newMemStore()
	svc := newTestService(analyzer, store)
	p := setupProblem(t, store, "")
	v := setupVision(t, store, p.ID)

	locks, err := svc.StageLocks(context.Background(), p.ID, v.ID)
	require.NoError(t, err)
	assert.True(t, locks[models.StageProblem])
	assert.True(t, locks[models.StageVision])
	assert.False(t, locks[models.StageR1])

	setupR1(t, store, p.ID, v.ID)
	locks, err = svc.StageLocks(context.Background(), p.ID, v.ID)
	require.NoError(t, err)
	assert.True(t, locks[models.StageR1])
	assert.False(t, locks[models.StageR2], "the next open refinement stage is reported")
}
