package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/streamcore/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name          string   `json:"name"`
	Pass          bool     `json:"pass"`
	GoldenUpdated bool     `json:"golden_updated,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios against an in-process node",
		Long: `Run conformance scenarios using the harness framework.

Each scenario drives a fresh in-process node, checks every step's expected
outcome, then evaluates trace and final state assertions. When
<scenarios-dir>/golden/<name>.golden exists the trace and final state must
match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  streamctl test ./scenarios
  streamctl test ./scenarios --filter "key_*"
  streamctl test ./scenarios --update
  streamctl test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files of passing scenarios")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 && opts.Format != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	var progress io.Writer = cmd.OutOrStdout()
	if opts.Format == "json" {
		progress = io.Discard
	}
	logger := opts.Logger(cmd.ErrOrStderr())
	for _, file := range files {
		sr := runScenario(file, opts.Update, harness.WithLogger(logger))
		reportScenario(progress, sr)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles finds all YAML scenario files under dir whose base
// name (without extension) matches filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario loads and runs one scenario file. A passing run is checked
// against its golden file when one exists; with update the golden file is
// rewritten instead.
func runScenario(file string, update bool, opts ...harness.Option) ScenarioResult {
	failed := func(name string, errs ...string) ScenarioResult {
		return ScenarioResult{Name: name, Errors: errs}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed(filepath.Base(file), fmt.Sprintf("Load error: %v", err))
	}
	result, err := harness.Run(scenario, opts...)
	if err != nil {
		return failed(scenario.Name, fmt.Sprintf("Execution error: %v", err))
	}
	if !result.Pass {
		return failed(scenario.Name, result.Errors...)
	}

	goldenPath := goldenFilePath(file)
	if update {
		if err := updateGoldenFile(scenario, result, goldenPath); err != nil {
			return failed(scenario.Name, fmt.Sprintf("Golden update error: %v", err))
		}
		return ScenarioResult{Name: scenario.Name, Pass: true, GoldenUpdated: true}
	}

	if _, err := os.Stat(goldenPath); os.IsNotExist(err) {
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}
	match, err := compareWithGolden(scenario, result, goldenPath)
	if err != nil {
		return failed(scenario.Name, fmt.Sprintf("Golden comparison error: %v", err))
	}
	if !match {
		return failed(scenario.Name, "Golden file mismatch (run with --update to regenerate)")
	}
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

func reportScenario(w io.Writer, sr ScenarioResult) {
	switch {
	case sr.GoldenUpdated:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
	case sr.Pass:
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
	default:
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// updateGoldenFile writes the current trace and state as the golden file.
func updateGoldenFile(scenario *harness.Scenario, result *harness.Result, goldenPath string) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	data, err := harness.NewTraceSnapshot(scenario.Name, result).Marshal()
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	return os.WriteFile(goldenPath, data, 0644)
}

// compareWithGolden compares the result trace against the golden file.
func compareWithGolden(scenario *harness.Scenario, result *harness.Result, goldenPath string) (bool, error) {
	want, err := os.ReadFile(goldenPath)
	if err != nil {
		return false, fmt.Errorf("read golden file: %w", err)
	}
	got, err := harness.NewTraceSnapshot(scenario.Name, result).Marshal()
	if err != nil {
		return false, fmt.Errorf("marshal trace: %w", err)
	}
	return bytes.Equal(want, got), nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
