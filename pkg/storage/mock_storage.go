package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements storage.Store with in-memory storage. Evaluations
// finalize invocations concurrently, so all access goes through one mutex.
type mockStore struct {
	mu          sync.Mutex
	workflows   []models.Workflow
	versions    []models.WorkflowVersion
	runs        []models.Run
	generations []models.Generation
	invocations []models.WorkflowInvocation
	inputs      map[string]models.EvaluationInput
	committed   bool // Transaction state
}

// NewMockStore creates an in-memory Store for tests and examples.
func NewMockStore() Store {
	return &mockStore{inputs: make(map[string]models.EvaluationInput)}
}

func (m *mockStore) Begin() (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// The mock shares one instance across transactions; opening a new one
	// clears the previous commit marker.
	m.committed = false
	return m, nil
}

func (m *mockStore) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return errors.New("already committed")
	}
	m.committed = true
	return nil
}

func (m *mockStore) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committed {
		return errors.New("cannot rollback committed transaction")
	}
	// No-op: the mock keeps no per-transaction state to discard
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveWorkflow(w models.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.workflows {
		if existing.ID == w.ID {
			return errors.New("workflow already exists")
		}
	}
	m.workflows = append(m.workflows, w)
	return nil
}

func (m *mockStore) GetWorkflow(id string) (models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workflows {
		if w.ID == id {
			return w, nil
		}
	}
	return models.Workflow{}, ErrNotFound
}

func (m *mockStore) SaveWorkflowVersion(v models.WorkflowVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.versions {
		if existing.ID == v.ID {
			return errors.New("workflow version already exists")
		}
	}
	m.versions = append(m.versions, v)
	return nil
}

func (m *mockStore) GetWorkflowVersion(id string) (models.WorkflowVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.ID == id {
			return v, nil
		}
	}
	return models.WorkflowVersion{}, ErrNotFound
}

func (m *mockStore) ListGenerationVersions(generationID string) ([]models.WorkflowVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkflowVersion
	for _, v := range m.versions {
		if v.GenerationID == generationID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockStore) SaveRun(r models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.runs {
		if existing.ID == r.ID {
			return errors.New("run already exists")
		}
	}
	m.runs = append(m.runs, r)
	return nil
}

func (m *mockStore) GetRun(id string) (models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return models.Run{}, ErrNotFound
}

func (m *mockStore) ListRuns() ([]models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Run, len(m.runs))
	copy(out, m.runs)
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

func (m *mockStore) UpdateRunStatus(id string, status models.RunStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.ID == id {
			m.runs[i].Status = status
			m.runs[i].ErrorMsg = errorMsg
			if status != models.RunStatusRunning {
				now := time.Now()
				m.runs[i].EndTime = &now
			}
			return nil
		}
	}
	return errors.New("run not found")
}

func (m *mockStore) AddRunCost(id string, usd float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.ID == id {
			m.runs[i].TotalCostUSD += usd
			return nil
		}
	}
	return errors.New("run not found")
}

func (m *mockStore) SaveGeneration(g models.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.generations {
		if existing.ID == g.ID {
			return errors.New("generation already exists")
		}
	}
	m.generations = append(m.generations, g)
	return nil
}

func (m *mockStore) CompleteGeneration(id string, bestScore, costUSD float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, g := range m.generations {
		if g.ID == id {
			now := time.Now()
			m.generations[i].EndTime = &now
			m.generations[i].BestScore = bestScore
			m.generations[i].CostUSD = costUSD
			return nil
		}
	}
	return errors.New("generation not found")
}

// GetLastCompletedGeneration returns the highest-numbered generation of the
// run that has an end time, or nil when the run has none. The nil result is
// not an error.
func (m *mockStore) GetLastCompletedGeneration(runID string) (*models.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *models.Generation
	for i, g := range m.generations {
		if g.RunID != runID || g.EndTime == nil {
			continue
		}
		if last == nil || g.Number > last.Number {
			last = &m.generations[i]
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (m *mockStore) ListGenerations(runID string) ([]models.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Generation
	for _, g := range m.generations {
		if g.RunID == runID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *mockStore) SaveInvocation(inv models.WorkflowInvocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invocations {
		if existing.ID == inv.ID {
			return errors.New("invocation already exists")
		}
	}
	m.invocations = append(m.invocations, inv)
	return nil
}

func (m *mockStore) FinalizeInvocation(inv models.WorkflowInvocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.invocations {
		if existing.ID == inv.ID {
			if inv.EndTime == nil {
				now := time.Now()
				inv.EndTime = &now
			}
			m.invocations[i] = inv
			return nil
		}
	}
	return errors.New("invocation not found")
}

func (m *mockStore) ListGenerationInvocations(generationID string) ([]models.WorkflowInvocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkflowInvocation
	for _, inv := range m.invocations {
		if inv.GenerationID == generationID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *mockStore) SaveEvaluationInput(name string, input models.EvaluationInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs[name] = input
	return nil
}

func (m *mockStore) GetEvaluationInput(name string) (models.EvaluationInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	input, ok := m.inputs[name]
	if !ok {
		return models.EvaluationInput{}, ErrNotFound
	}
	return input, nil
}
