package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eenlars/evoflow/pkg/dataset"
	"github.com/eenlars/evoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSONL = `{"task_id": "t1", "Question": "What is the capital of France?", "Level": 1, "Final answer": "Paris"}
{"task_id": "t2", "Question": "Summarize the attached report.", "Level": 2, "file_name": "report.pdf"}

{"task_id": "t3", "Question": "How many moons does Mars have?", "Level": 1, "Final answer": "2"}
{"task_id": "t4", "Question": "Hardest question.", "Level": 3, "Final answer": "42"}
`

const sampleJSON = `[
  {"task_id": "t1", "Question": "What is the capital of France?", "Level": 1, "Final answer": "Paris"},
  {"task_id": "t2", "Question": "Summarize the attached report.", "Level": 2, "file_name": "report.pdf"}
]`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGAIA(t *testing.T) {
	t.Run("jsonl with blank lines", func(t *testing.T) {
		records, err := dataset.LoadGAIA(writeTemp(t, "validation.jsonl", sampleJSONL), dataset.LoadOptions{})
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, "t1", records[0].TaskID)
		assert.Equal(t, "Paris", records[0].FinalAnswer)
		assert.Equal(t, "report.pdf", records[1].FileName)
	})

	t.Run("json array format", func(t *testing.T) {
		records, err := dataset.LoadGAIA(writeTemp(t, "validation.json", sampleJSON), dataset.LoadOptions{})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, 2, records[1].Level)
	})

	t.Run("level filter", func(t *testing.T) {
		records, err := dataset.LoadGAIA(writeTemp(t, "v.jsonl", sampleJSONL), dataset.LoadOptions{Levels: []int{1}})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "t1", records[0].TaskID)
		assert.Equal(t, "t3", records[1].TaskID)
	})

	t.Run("require answer drops unanswered tasks", func(t *testing.T) {
		records, err := dataset.LoadGAIA(writeTemp(t, "v.jsonl", sampleJSONL), dataset.LoadOptions{RequireAnswer: true})
		require.NoError(t, err)
		require.Len(t, records, 3)
		for _, r := range records {
			assert.NotEmpty(t, r.FinalAnswer)
		}
	})

	t.Run("limit caps the record count", func(t *testing.T) {
		records, err := dataset.LoadGAIA(writeTemp(t, "v.jsonl", sampleJSONL), dataset.LoadOptions{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := dataset.LoadGAIA(filepath.Join(t.TempDir(), "nope.jsonl"), dataset.LoadOptions{})
		assert.Error(t, err)
	})

	t.Run("malformed line reports its number", func(t *testing.T) {
		_, err := dataset.LoadGAIA(writeTemp(t, "bad.jsonl", "{\"task_id\": \"ok\"}\n{broken"), dataset.LoadOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})
}

func TestToEvaluationInput(t *testing.T) {
	records, err := dataset.LoadGAIA(writeTemp(t, "v.jsonl", sampleJSONL), dataset.LoadOptions{Levels: []int{1, 2}})
	require.NoError(t, err)

	input := dataset.ToEvaluationInput("answer benchmark questions", records)
	assert.Equal(t, models.InputTypeText, input.Type)
	assert.Equal(t, "answer benchmark questions", input.Goal)
	require.Len(t, input.Cases, 3)
	assert.Equal(t, "t1", input.Cases[0].ID)
	assert.Equal(t, "Paris", input.Cases[0].Expected)
	assert.Equal(t, "report.pdf", input.Cases[1].FileName)
}
