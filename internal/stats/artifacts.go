package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"predictivelab/internal/model"
)

const (
	runFile    = "run.json"
	seriesFile = "signals.csv"
)

// WriteRunArtifacts writes run.json and signals.csv under baseDir/<run id>
// and returns that directory.
func WriteRunArtifacts(baseDir string, run model.RunRecord, samples []model.SignalSample) (string, error) {
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, runFile), run); err != nil {
		return "", err
	}

	file, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return "", err
	}
	defer file.Close()
	if err := WriteCSV(file, samples); err != nil {
		return "", err
	}
	return runDir, file.Sync()
}

// ReadRunArtifacts loads what WriteRunArtifacts wrote.
func ReadRunArtifacts(runDir string) (model.RunRecord, []model.SignalSample, error) {
	data, err := os.ReadFile(filepath.Join(runDir, runFile))
	if err != nil {
		return model.RunRecord{}, nil, err
	}
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, nil, err
	}

	file, err := os.Open(filepath.Join(runDir, seriesFile))
	if err != nil {
		return model.RunRecord{}, nil, err
	}
	defer file.Close()
	samples, err := ReadCSV(file)
	if err != nil {
		return model.RunRecord{}, nil, err
	}
	return run, samples, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
