// Package dataset loads benchmark task files into evaluation inputs.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/eenlars/evoflow/pkg/models"
)

// Record mirrors one GAIA metadata entry. The benchmark ships metadata as
// JSONL; the download tooling also emits plain JSON arrays, and LoadGAIA
// accepts both.
type Record struct {
	TaskID      string `json:"task_id"`
	Question    string `json:"Question"`
	Level       int    `json:"Level"`
	FinalAnswer string `json:"Final answer,omitempty"`
	FileName    string `json:"file_name,omitempty"`
}

// LoadOptions filters the records pulled from a metadata file.
type LoadOptions struct {
	Levels        []int // keep only these difficulty levels; empty keeps all
	Limit         int   // cap the record count; 0 means unlimited
	RequireAnswer bool  // drop records without a ground-truth answer
}

// LoadGAIA reads a GAIA metadata file (JSONL or JSON array) and applies the
// filters.
func LoadGAIA(path string, opts LoadOptions) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	records, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}

	levels := make(map[int]bool, len(opts.Levels))
	for _, l := range opts.Levels {
		levels[l] = true
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if len(levels) > 0 && !levels[r.Level] {
			continue
		}
		if opts.RequireAnswer && r.FinalAnswer == "" {
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func parse(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(text, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ToEvaluationInput converts records into the evaluation input the engine
// scores populations against.
func ToEvaluationInput(goal string, records []Record) models.EvaluationInput {
	cases := make([]models.EvaluationCase, len(records))
	for i, r := range records {
		cases[i] = models.EvaluationCase{
			ID:       r.TaskID,
			Question: r.Question,
			Expected: r.FinalAnswer,
			Level:    r.Level,
			FileName: r.FileName,
		}
	}
	return models.EvaluationInput{
		Type:  models.InputTypeText,
		Goal:  goal,
		Cases: cases,
	}
}
