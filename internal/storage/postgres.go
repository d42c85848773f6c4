package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveWorkflow registers a logical workflow
func (s *PostgresStore) SaveWorkflow(w models.Workflow) error {
	_, err := s.db.Exec("INSERT INTO workflows (id, description, created_at) VALUES ($1, $2, $3)",
		w.ID, w.Description, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID
func (s *PostgresStore) GetWorkflow(id string) (models.Workflow, error) {
	var wf models.Workflow
	err := s.db.Get(&wf, "SELECT id, description, created_at FROM workflows WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Workflow{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Workflow{}, err
	}
	return wf, nil
}

// versionRow carries the jsonb columns as raw bytes; sqlx cannot scan
// directly into the nested config struct.
type versionRow struct {
	ID               string       `db:"id"`
	WorkflowID       string       `db:"workflow_id"`
	GenerationID     string       `db:"generation_id"`
	Operation        string       `db:"operation"`
	ParentVersionIDs []byte       `db:"parent_version_ids"`
	Config           []byte       `db:"config"`
	CreatedAt        sql.NullTime `db:"created_at"`
}

func (r versionRow) toModel() (models.WorkflowVersion, error) {
	v := models.WorkflowVersion{
		ID:           r.ID,
		WorkflowID:   r.WorkflowID,
		GenerationID: r.GenerationID,
		Operation:    models.VersionOperation(r.Operation),
	}
	if r.CreatedAt.Valid {
		v.CreatedAt = r.CreatedAt.Time
	}
	if len(r.ParentVersionIDs) > 0 {
		if err := json.Unmarshal(r.ParentVersionIDs, &v.ParentVersionIDs); err != nil {
			return models.WorkflowVersion{}, fmt.Errorf("decode parent ids of version %s: %w", r.ID, err)
		}
	}
	if err := json.Unmarshal(r.Config, &v.Config); err != nil {
		return models.WorkflowVersion{}, fmt.Errorf("decode config of version %s: %w", r.ID, err)
	}
	return v, nil
}

// SaveWorkflowVersion persists one genome's configuration snapshot
func (s *PostgresStore) SaveWorkflowVersion(v models.WorkflowVersion) error {
	cfg, err := json.Marshal(v.Config)
	if err != nil {
		return fmt.Errorf("encode config of version %s: %w", v.ID, err)
	}
	parents, err := json.Marshal(v.ParentVersionIDs)
	if err != nil {
		return fmt.Errorf("encode parent ids of version %s: %w", v.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO workflow_versions (id, workflow_id, generation_id, operation, parent_version_ids, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.WorkflowID, v.GenerationID, string(v.Operation), parents, cfg, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("save workflow version: %w", err)
	}
	return nil
}

// GetWorkflowVersion retrieves one version by ID
func (s *PostgresStore) GetWorkflowVersion(id string) (models.WorkflowVersion, error) {
	var row versionRow
	err := s.db.Get(&row, "SELECT * FROM workflow_versions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.WorkflowVersion{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowVersion{}, err
	}
	return row.toModel()
}

// ListGenerationVersions retrieves all versions created in a generation
func (s *PostgresStore) ListGenerationVersions(generationID string) ([]models.WorkflowVersion, error) {
	var rows []versionRow
	err := s.db.Select(&rows, "SELECT * FROM workflow_versions WHERE generation_id = $1 ORDER BY created_at, id", generationID)
	if err != nil {
		return nil, err
	}
	out := make([]models.WorkflowVersion, 0, len(rows))
	for _, r := range rows {
		v, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SaveRun opens a new run record
func (s *PostgresStore) SaveRun(r models.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, workflow_id, goal, status, error_msg, total_cost_usd, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.WorkflowID, r.Goal, r.Status, r.ErrorMsg, r.TotalCostUSD, r.StartTime, r.EndTime)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *PostgresStore) GetRun(id string) (models.Run, error) {
	var run models.Run
	err := s.db.Get(&run, "SELECT * FROM runs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Run{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Run{}, err
	}
	return run, nil
}

// ListRuns retrieves all runs, newest first
func (s *PostgresStore) ListRuns() ([]models.Run, error) {
	runs := []models.Run{}
	err := s.db.Select(&runs, "SELECT * FROM runs ORDER BY start_time DESC")
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// UpdateRunStatus moves a run through its status state machine. Terminal
// statuses stamp the end time; reopening a run clears it.
func (s *PostgresStore) UpdateRunStatus(id string, status models.RunStatus, errorMsg string) error {
	_, err := s.db.Exec(`
		UPDATE runs
		SET status = $1,
		error_msg = $2,
		end_time = CASE WHEN $3 IN ('completed', 'failed', 'interrupted') THEN CURRENT_TIMESTAMP ELSE NULL END
		WHERE id = $4`,
		// The CASE clause binds its own parameter so the status is passed twice
		status, errorMsg, status, id)
	return err
}

// AddRunCost accumulates spend onto the run record
func (s *PostgresStore) AddRunCost(id string, usd float64) error {
	_, err := s.db.Exec("UPDATE runs SET total_cost_usd = total_cost_usd + $1 WHERE id = $2", usd, id)
	return err
}

// SaveGeneration opens a new generation record
func (s *PostgresStore) SaveGeneration(g models.Generation) error {
	_, err := s.db.Exec(`
		INSERT INTO generations (id, run_id, number, comment, best_score, cost_usd, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.RunID, g.Number, g.Comment, g.BestScore, g.CostUSD, g.StartTime, g.EndTime)
	if err != nil {
		return fmt.Errorf("save generation: %w", err)
	}
	return nil
}

// CompleteGeneration closes a generation with its final score and spend
func (s *PostgresStore) CompleteGeneration(id string, bestScore, costUSD float64) error {
	_, err := s.db.Exec(
		"UPDATE generations SET best_score = $1, cost_usd = $2, end_time = CURRENT_TIMESTAMP WHERE id = $3",
		bestScore, costUSD, id)
	return err
}

// GetLastCompletedGeneration returns the highest-numbered generation of the
// run with an end time, or nil when the run has none. The nil result is not
// an error.
func (s *PostgresStore) GetLastCompletedGeneration(runID string) (*models.Generation, error) {
	var gen models.Generation
	err := s.db.Get(&gen,
		"SELECT * FROM generations WHERE run_id = $1 AND end_time IS NOT NULL ORDER BY number DESC LIMIT 1",
		runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

// ListGenerations retrieves the run's generations in order
func (s *PostgresStore) ListGenerations(runID string) ([]models.Generation, error) {
	gens := []models.Generation{}
	err := s.db.Select(&gens, "SELECT * FROM generations WHERE run_id = $1 ORDER BY number", runID)
	if err != nil {
		return nil, err
	}
	return gens, nil
}

// SaveInvocation records the start of one workflow execution
func (s *PostgresStore) SaveInvocation(inv models.WorkflowInvocation) error {
	_, err := s.db.Exec(`
		INSERT INTO invocations (id, generation_id, workflow_version_id, status, usd_cost, accuracy, fitness, feedback, error_msg, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.ID, inv.GenerationID, inv.WorkflowVersionID, inv.Status, inv.UsdCost, inv.Accuracy, inv.Fitness, inv.Feedback, inv.ErrorMsg, inv.StartTime, inv.EndTime)
	if err != nil {
		return fmt.Errorf("save invocation: %w", err)
	}
	return nil
}

// FinalizeInvocation writes the terminal state of an execution
func (s *PostgresStore) FinalizeInvocation(inv models.WorkflowInvocation) error {
	_, err := s.db.Exec(`
		UPDATE invocations
		SET status = $1, usd_cost = $2, accuracy = $3, fitness = $4, feedback = $5, error_msg = $6,
		end_time = COALESCE($7, CURRENT_TIMESTAMP)
		WHERE id = $8`,
		inv.Status, inv.UsdCost, inv.Accuracy, inv.Fitness, inv.Feedback, inv.ErrorMsg, inv.EndTime, inv.ID)
	return err
}

// ListGenerationInvocations retrieves all executions of a generation
func (s *PostgresStore) ListGenerationInvocations(generationID string) ([]models.WorkflowInvocation, error) {
	invs := []models.WorkflowInvocation{}
	err := s.db.Select(&invs, "SELECT * FROM invocations WHERE generation_id = $1 ORDER BY start_time, id", generationID)
	if err != nil {
		return nil, err
	}
	return invs, nil
}

// SaveEvaluationInput stores a named evaluation input, replacing any
// previous payload under the same name
func (s *PostgresStore) SaveEvaluationInput(name string, input models.EvaluationInput) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode evaluation input '%s': %w", name, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO evaluation_inputs (name, payload, created_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload`,
		name, payload)
	return err
}

// GetEvaluationInput retrieves a named evaluation input
func (s *PostgresStore) GetEvaluationInput(name string) (models.EvaluationInput, error) {
	var payload []byte
	err := s.db.QueryRowx("SELECT payload FROM evaluation_inputs WHERE name = $1", name).Scan(&payload)
	if err == sql.ErrNoRows {
		return models.EvaluationInput{}, storage.ErrNotFound
	}
	if err != nil {
		return models.EvaluationInput{}, err
	}
	var input models.EvaluationInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return models.EvaluationInput{}, fmt.Errorf("decode evaluation input '%s': %w", name, err)
	}
	return input, nil
}
