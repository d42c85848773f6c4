package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eenlars/evoflow/pkg/llm"
	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/observer"
)

const (
	// default node timeout is 1m
	DefaultNodeTimeout = 60 * time.Second
)

// Logger is the narrow logging interface the runner depends on.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// ToolCaller invokes a named external tool with structured arguments.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Options tunes workflow execution.
type Options struct {
	// MaxWorkers bounds node parallelism inside one workflow execution.
	MaxWorkers int
	// NodeTimeout caps a single node attempt when StallGuard is on.
	NodeTimeout time.Duration
	// StallGuard enables the per-node timeout.
	StallGuard bool
	// NodeRetries is how many extra attempts a failed node gets.
	NodeRetries int
	// JudgeModel scores answers in RunAndEvaluate.
	JudgeModel string
}

// Runner executes workflow configurations node by node. To the evolutionary
// loop it is an opaque, possibly-failing, cost-incurring black box.
type Runner struct {
	llm      llm.Client
	tools    ToolCaller
	registry *observer.ObserverRegistry
	logger   Logger
	opts     Options
}

// NewRunner creates a runner. tools and registry may be nil; executions then
// run without tool access and without observation events.
func NewRunner(client llm.Client, tools ToolCaller, registry *observer.ObserverRegistry, logger Logger, opts Options) *Runner {
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.NodeTimeout == 0 {
		opts.NodeTimeout = DefaultNodeTimeout
	}
	if opts.JudgeModel == "" {
		opts.JudgeModel = "gpt-4.1-mini"
	}
	return &Runner{llm: client, tools: tools, registry: registry, logger: logger, opts: opts}
}

// Workflow is a validated, executable configuration.
type Workflow struct {
	cfg       models.WorkflowConfig
	reachable map[string]bool
	prereqs   map[string][]string
	terminals []string
}

// Config returns a copy of the underlying configuration.
func (w *Workflow) Config() models.WorkflowConfig {
	return w.cfg.Clone()
}

// Create validates a configuration and precomputes its execution plan.
// Cyclic graphs are rejected; a genome carrying one fails here and is scored
// by its evaluator accordingly.
func (r *Runner) Create(cfg models.WorkflowConfig) (*Workflow, error) {
	if err := cfg.ValidateGraph(false); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	reachable := map[string]bool{cfg.EntryNodeID: true}
	queue := []string{cfg.EntryNodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node, _ := cfg.NodeByID(id)
		for _, target := range node.HandOffs {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	prereqs := make(map[string][]string, len(reachable))
	var terminals []string
	for _, n := range cfg.Nodes {
		if !reachable[n.NodeID] {
			continue
		}
		if len(n.HandOffs) == 0 {
			terminals = append(terminals, n.NodeID)
		}
		seen := map[string]bool{}
		for _, src := range cfg.Nodes {
			if !reachable[src.NodeID] {
				continue
			}
			for _, target := range src.HandOffs {
				if target == n.NodeID && !seen[src.NodeID] {
					seen[src.NodeID] = true
					prereqs[n.NodeID] = append(prereqs[n.NodeID], src.NodeID)
				}
			}
		}
		for _, dep := range n.WaitingFor {
			if reachable[dep] && !seen[dep] {
				seen[dep] = true
				prereqs[n.NodeID] = append(prereqs[n.NodeID], dep)
			}
		}
	}

	if err := checkSchedulable(reachable, prereqs); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	return &Workflow{cfg: cfg.Clone(), reachable: reachable, prereqs: prereqs, terminals: terminals}, nil
}

// checkSchedulable runs Kahn's algorithm over the combined handoff and
// waiting-for edges; leftovers mean a waiting-for dependency can never be
// satisfied.
func checkSchedulable(reachable map[string]bool, prereqs map[string][]string) error {
	inDegree := make(map[string]int, len(reachable))
	for id := range reachable {
		inDegree[id] = len(prereqs[id])
	}
	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for other, deps := range prereqs {
			for _, d := range deps {
				if d == id {
					inDegree[other]--
					if inDegree[other] == 0 {
						queue = append(queue, other)
					}
				}
			}
		}
	}
	if visited != len(reachable) {
		return fmt.Errorf("waitingFor dependencies form an unsatisfiable cycle")
	}
	return nil
}

// RunResult is the outcome of one workflow execution.
type RunResult struct {
	Success    bool
	Output     string
	NodeOutput map[string]string
	NodeErrors map[string]error
	UsdCost    float64
	Duration   time.Duration
}

// execState holds the shared state of one workflow execution.
type execState struct {
	mu           sync.Mutex
	outputs      map[string]string
	errs         map[string]error
	queued       map[string]bool
	pending      int
	completeChan chan struct{}
	cleanupOnce  sync.Once
	cost         float64
}

func (st *execState) addCost(usd float64) {
	st.mu.Lock()
	st.cost += usd
	st.mu.Unlock()
}

func (st *execState) markQueued(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.queued[id] {
		return false
	}
	st.queued[id] = true
	return true
}

// Run executes the workflow against one task. Node failures do not abort the
// execution; dependents see an error placeholder and the result reports
// Success=false. On context cancellation the partial result is returned
// alongside the error, spend included.
func (r *Runner) Run(ctx context.Context, wf *Workflow, task string, runID string) (*RunResult, error) {
	start := time.Now()

	var obs *observer.AgentObserver
	if r.registry != nil {
		if o, ok := r.registry.Get(runID); ok {
			obs = o
		}
	}

	st := &execState{
		outputs:      make(map[string]string),
		errs:         make(map[string]error),
		queued:       make(map[string]bool),
		pending:      len(wf.reachable),
		completeChan: make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	nodeChan := make(chan string, len(wf.reachable)+r.opts.MaxWorkers+1)
	var wg sync.WaitGroup
	for i := 0; i < r.opts.MaxWorkers; i++ {
		wg.Add(1)
		go r.worker(runCtx, wf, st, nodeChan, task, obs, &wg)
	}

	st.markQueued(wf.cfg.EntryNodeID)
	nodeChan <- wf.cfg.EntryNodeID

	var runErr error
	select {
	case <-st.completeChan:
	case <-ctx.Done():
		runErr = ctx.Err()
	}
	cancel()
	wg.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	res := &RunResult{
		Success:    runErr == nil && len(st.errs) == 0,
		NodeOutput: st.outputs,
		NodeErrors: st.errs,
		UsdCost:    st.cost,
		Duration:   time.Since(start),
	}
	var finals []string
	for _, id := range wf.terminals {
		if out, ok := st.outputs[id]; ok {
			finals = append(finals, out)
		}
	}
	res.Output = strings.Join(finals, "\n\n")
	return res, runErr
}

func (r *Runner) worker(ctx context.Context, wf *Workflow, st *execState, nodeChan chan string, task string, obs *observer.AgentObserver, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-nodeChan:
			if !r.ready(wf, st, id) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Millisecond):
				}
				select {
				case nodeChan <- id:
				case <-ctx.Done():
					return
				}
				continue
			}

			r.executeNode(ctx, wf, st, id, task, obs)

			node, _ := wf.cfg.NodeByID(id)
			for _, target := range node.HandOffs {
				if st.markQueued(target) {
					select {
					case nodeChan <- target:
					case <-ctx.Done():
						return
					}
				}
			}

			st.mu.Lock()
			st.pending--
			if st.pending == 0 {
				st.cleanupOnce.Do(func() { close(st.completeChan) })
			}
			st.mu.Unlock()
		}
	}
}

func (r *Runner) ready(wf *Workflow, st *execState, id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, dep := range wf.prereqs[id] {
		if _, done := st.outputs[dep]; !done {
			return false
		}
	}
	return true
}

type labeledInput struct {
	nodeID string
	output string
}

func (st *execState) inputsFor(wf *Workflow, id string) []labeledInput {
	st.mu.Lock()
	defer st.mu.Unlock()
	inputs := make([]labeledInput, 0, len(wf.prereqs[id]))
	for _, dep := range wf.prereqs[id] {
		if out, ok := st.outputs[dep]; ok {
			inputs = append(inputs, labeledInput{nodeID: dep, output: out})
		}
	}
	return inputs
}

func (r *Runner) executeNode(ctx context.Context, wf *Workflow, st *execState, id string, task string, obs *observer.AgentObserver) {
	node, _ := wf.cfg.NodeByID(id)
	if obs != nil {
		obs.EmitAgentStart(node.NodeID, map[string]interface{}{"model": node.ModelName})
	}

	var output string
	var nodeErr error
	attempts := r.opts.NodeRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		r.logger.Infof("Starting node %s attempt %d", id, attempt+1)

		nodeCtx := ctx
		var cancelNode context.CancelFunc = func() {}
		if r.opts.StallGuard {
			nodeCtx, cancelNode = context.WithTimeout(ctx, r.opts.NodeTimeout)
		}
		var cost float64
		output, cost, nodeErr = r.runNode(nodeCtx, node, task, st.inputsFor(wf, id), obs)
		cancelNode()
		st.addCost(cost)

		if nodeErr == nil {
			break
		}
		if attempt < attempts-1 {
			r.logger.Infof("Retrying node %s (attempt %d/%d): %v", id, attempt+1, r.opts.NodeRetries, nodeErr)
			select {
			case <-ctx.Done():
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	st.mu.Lock()
	if nodeErr != nil {
		st.errs[id] = nodeErr
		// Store an error placeholder so dependents can still run
		st.outputs[id] = fmt.Sprintf("ERROR: %v", nodeErr)
	} else {
		st.outputs[id] = output
	}
	st.mu.Unlock()

	if nodeErr != nil {
		r.logger.Errorf("Node %s failed: %v", id, nodeErr)
		if obs != nil {
			obs.EmitAgentError(node.NodeID, nodeErr)
		}
		return
	}
	if obs != nil {
		obs.EmitAgentEnd(node.NodeID, map[string]interface{}{"chars": len(output)})
	}
}

type toolDirective struct {
	UseTool bool                   `json:"useTool"`
	Tool    string                 `json:"tool"`
	Args    map[string]interface{} `json:"args"`
}

// runNode performs one attempt: an optional single tool pass followed by the
// node's model call. The accumulated cost is returned even when the attempt
// fails.
func (r *Runner) runNode(ctx context.Context, node models.WorkflowNodeConfig, task string, upstream []labeledInput, obs *observer.AgentObserver) (string, float64, error) {
	var cost float64

	var sb strings.Builder
	sb.WriteString("Task:\n")
	sb.WriteString(task)
	for _, in := range upstream {
		sb.WriteString("\n\nOutput from ")
		sb.WriteString(in.nodeID)
		sb.WriteString(":\n")
		sb.WriteString(in.output)
	}
	userContent := sb.String()

	messages := []llm.Message{
		{Role: "system", Content: systemPromptFor(node)},
		{Role: "user", Content: userContent},
	}

	tools := append(append([]string(nil), node.MCPTools...), node.CodeTools...)
	if len(tools) > 0 && r.tools != nil {
		directive, err := llm.GenObject[toolDirective](ctx, r.llm, llm.ObjectRequest{
			Model: node.ModelName,
			System: fmt.Sprintf(
				"You may call exactly one of these tools before answering: %s. "+
					"Reply with {\"useTool\": true, \"tool\": \"<name>\", \"args\": {...}} to call one, "+
					"or {\"useTool\": false} to answer directly.",
				strings.Join(tools, ", ")),
			Prompt:    userContent,
			MaxTokens: 400,
		})
		if err != nil {
			// A broken tool directive is not fatal; the node answers without it.
			cost += llm.CostFromError(err)
			r.logger.Infof("Node %s tool selection failed, continuing without tools: %v", node.NodeID, err)
		} else {
			cost += directive.UsdCost
			if directive.Data.UseTool && directive.Data.Tool != "" {
				if obs != nil {
					obs.EmitToolStart(node.NodeID, directive.Data.Tool)
				}
				toolOut, terr := r.tools.CallTool(ctx, directive.Data.Tool, directive.Data.Args)
				if terr != nil {
					toolOut = fmt.Sprintf("tool %s failed: %v", directive.Data.Tool, terr)
				}
				if obs != nil {
					obs.EmitToolEnd(node.NodeID, directive.Data.Tool, map[string]interface{}{"chars": len(toolOut)})
				}
				messages = append(messages, llm.Message{
					Role:    "user",
					Content: fmt.Sprintf("Tool result (%s):\n%s", directive.Data.Tool, toolOut),
				})
			}
		}
	}

	resp, err := r.llm.SendAI(ctx, llm.Request{Model: node.ModelName, Messages: messages})
	if err != nil {
		// Spend incurred by a failed call is still charged.
		return "", cost + llm.CostFromError(err), err
	}
	cost += resp.UsdCost
	return resp.Content, cost, nil
}

// CaseResult is the judged outcome of one evaluation case.
type CaseResult struct {
	CaseID   string  `json:"caseId"`
	Score    float64 `json:"score"`
	Correct  bool    `json:"correct"`
	Feedback string  `json:"feedback,omitempty"`
}

// EvalResult is the outcome of RunAndEvaluate.
type EvalResult struct {
	Success         bool
	Results         []CaseResult
	AverageFitness  float64
	AverageFeedback string
	UsdCost         float64
}

type evalVerdict struct {
	Cases []CaseResult `json:"cases"`
}

// RunAndEvaluate executes the workflow against all cases of the input in one
// pass and grades the transcript with the judge model. It is the one-shot
// convenience over Run; the evaluator strategies in pkg/evaluator offer finer
// control. Partial cost is reported even when the execution fails.
func (r *Runner) RunAndEvaluate(ctx context.Context, wf *Workflow, input models.EvaluationInput, runID string) (*EvalResult, error) {
	var sb strings.Builder
	sb.WriteString(input.Goal)
	sb.WriteString("\n\nAnswer every task below. Number your answers to match.\n")
	for i, c := range input.Cases {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c.Question)
	}

	run, err := r.Run(ctx, wf, sb.String(), runID)
	cost := 0.0
	if run != nil {
		cost = run.UsdCost
	}
	if err != nil {
		return &EvalResult{UsdCost: cost}, err
	}
	if !run.Success {
		return &EvalResult{UsdCost: cost}, fmt.Errorf("workflow execution failed")
	}

	var jb strings.Builder
	jb.WriteString("Tasks and expected answers:\n")
	for i, c := range input.Cases {
		fmt.Fprintf(&jb, "%d. id=%s question=%q expected=%q\n", i+1, c.ID, c.Question, c.Expected)
	}
	jb.WriteString("\nWorkflow answers:\n")
	jb.WriteString(run.Output)

	verdict, err := llm.GenObject[evalVerdict](ctx, r.llm, llm.ObjectRequest{
		Model: r.opts.JudgeModel,
		System: `You grade workflow answers against expected answers. For every task return ` +
			`{"caseId": "...", "score": 0..1, "correct": bool, "feedback": "one short sentence"}. ` +
			`Reply as {"cases": [...]}.`,
		Prompt: jb.String(),
	})
	if err != nil {
		return &EvalResult{UsdCost: cost + llm.CostFromError(err)}, fmt.Errorf("judge answers: %w", err)
	}
	cost += verdict.UsdCost

	res := &EvalResult{Success: true, Results: verdict.Data.Cases, UsdCost: cost}
	var sum float64
	var feedback []string
	for _, c := range res.Results {
		sum += c.Score
		if c.Feedback != "" {
			feedback = append(feedback, c.Feedback)
		}
	}
	if len(res.Results) > 0 {
		res.AverageFitness = sum / float64(len(res.Results))
	}
	res.AverageFeedback = strings.Join(feedback, "; ")
	return res, nil
}

func systemPromptFor(node models.WorkflowNodeConfig) string {
	if len(node.Memory) == 0 {
		return node.SystemPrompt
	}
	keys := make([]string, 0, len(node.Memory))
	for k := range node.Memory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(node.SystemPrompt)
	sb.WriteString("\n\nMemory:")
	for _, k := range keys {
		sb.WriteString("\n- ")
		sb.WriteString(k)
		if v := node.Memory[k]; v != "" {
			sb.WriteString(": ")
			sb.WriteString(v)
		}
	}
	return sb.String()
}
