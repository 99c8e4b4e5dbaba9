package service

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/skora-go-api/internal/dto"
	"github.com/noah-isme/skora-go-api/pkg/sandbox"
)

// TestCaseRunner executes every test case of one coding submission against
// the sandbox and aggregates pass/fail with per-case diagnostics.
type TestCaseRunner interface {
	Run(ctx context.Context, code, language string, testCases []dto.TestCase) dto.CodingRun
}

type testCaseRunner struct {
	sandbox   sandbox.Client
	batchSize int
	logger    zerolog.Logger
}

// NewTestCaseRunner constructs a runner that executes at most batchSize
// sandbox calls concurrently; batches run sequentially.
func NewTestCaseRunner(client sandbox.Client, batchSize int, logger zerolog.Logger) TestCaseRunner {
	if batchSize <= 0 {
		batchSize = 5
	}

	return &testCaseRunner{
		sandbox:   client,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "testcase_runner").Logger(),
	}
}

// Run never fails as a whole: a test case whose execution errors simply
// counts as not passed. Results are indexed by input position regardless of
// completion order.
func (r *testCaseRunner) Run(ctx context.Context, code, language string, testCases []dto.TestCase) dto.CodingRun {
	results := make([]dto.TestCaseResult, len(testCases))

	for start := 0; start < len(testCases); start += r.batchSize {
		end := start + r.batchSize
		if end > len(testCases) {
			end = len(testCases)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(index int, testCase dto.TestCase) {
				defer wg.Done()
				results[index] = r.runCase(ctx, code, language, index, testCase)
			}(i, testCases[i])
		}
		wg.Wait()
	}

	passed := 0
	for _, result := range results {
		if result.Passed {
			passed++
		}
	}

	return dto.CodingRun{Passed: passed, Total: len(testCases), Results: results}
}

func (r *testCaseRunner) runCase(ctx context.Context, code, language string, index int, testCase dto.TestCase) dto.TestCaseResult {
	result := dto.TestCaseResult{
		TestIndex:      index,
		Input:          testCase.Input,
		ExpectedOutput: testCase.ExpectedOutput,
		IsHidden:       testCase.IsHidden,
	}

	execution, err := r.sandbox.Execute(ctx, code, language, testCase.Input)
	result.ActualOutput = execution.Output

	if err != nil || !execution.Success {
		result.Error = execution.Error
		if result.Error == "" && err != nil {
			result.Error = err.Error()
		}
		return result
	}

	result.Passed = strings.TrimSpace(execution.Output) == strings.TrimSpace(testCase.ExpectedOutput)

	return result
}
