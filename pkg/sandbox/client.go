package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	execDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skora",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Duration of remote sandbox executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"language"})

	execRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skora",
		Subsystem: "sandbox",
		Name:      "execution_retries_total",
		Help:      "Number of sandbox calls retried after a transient failure",
	}, []string{"language"})

	execFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skora",
		Subsystem: "sandbox",
		Name:      "execution_failures_total",
		Help:      "Number of sandbox executions that did not succeed",
	}, []string{"language"})
)

// ErrUnsupportedLanguage indicates the requested language has no runtime mapping.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Runtime is the language/version pair the sandbox expects. The table must be
// kept in sync with the runtimes installed on the sandbox deployment.
type Runtime struct {
	Language string
	Version  string
}

var runtimes = map[string]Runtime{
	"python":     {Language: "python", Version: "3.10.0"},
	"javascript": {Language: "javascript", Version: "18.15.0"},
	"java":       {Language: "java", Version: "15.0.2"},
	"c++":        {Language: "c++", Version: "10.2.0"},
	"c":          {Language: "c", Version: "10.2.0"},
	"go":         {Language: "go", Version: "1.16.2"},
	"rust":       {Language: "rust", Version: "1.68.2"},
}

// SupportedLanguages lists the logical language names the client accepts.
func SupportedLanguages() []string {
	names := make([]string, 0, len(runtimes))
	for name := range runtimes {
		names = append(names, name)
	}
	return names
}

// ExecutionResult summarises one sandbox run. Success is false when the run
// could not be performed or produced anything on stderr; Output is preserved
// either way for diagnostics.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Client executes untrusted code remotely.
type Client interface {
	Execute(ctx context.Context, code, language, stdin string) (ExecutionResult, error)
}

// Config groups sandbox client configuration values.
type Config struct {
	BaseURL     string
	RunTimeout  time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	MaxInflight int
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// HTTPSandbox calls a piston-style execution API over HTTP.
type HTTPSandbox struct {
	baseURL    string
	runTimeout time.Duration
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	inflight   chan struct{}
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// New constructs an HTTP sandbox client.
func New(cfg Config) (*HTTPSandbox, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sandbox base url must not be empty")
	}

	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Second
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 20
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RunTimeout + 30*time.Second}
	}

	return &HTTPSandbox{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		runTimeout: cfg.RunTimeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: httpClient,
		inflight:   make(chan struct{}, cfg.MaxInflight),
		tracer:     otel.Tracer("github.com/noah-isme/skora-go-api/pkg/sandbox"),
		logger:     cfg.Logger.With().Str("component", "sandbox_client").Logger(),
	}, nil
}

type executeRequest struct {
	Language   string        `json:"language"`
	Version    string        `json:"version"`
	Files      []requestFile `json:"files"`
	Stdin      string        `json:"stdin"`
	RunTimeout int64         `json:"run_timeout"`
}

type requestFile struct {
	Content string `json:"content"`
}

type executeResponse struct {
	Run struct {
		Output string `json:"output"`
		Stderr string `json:"stderr"`
	} `json:"run"`
}

// Execute runs the given code with the given stdin. Transient sandbox
// failures are retried with exponential backoff; once retries are exhausted a
// failure result is returned rather than an error, so callers can count the
// test case as not passed without aborting the whole run. The only errors
// returned are an unknown language and context cancellation.
func (s *HTTPSandbox) Execute(ctx context.Context, code, language, stdin string) (ExecutionResult, error) {
	runtime, ok := runtimes[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		execFailures.WithLabelValues("unknown").Inc()
		return ExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("unsupported language: %s", language),
		}, ErrUnsupportedLanguage
	}

	select {
	case s.inflight <- struct{}{}:
	case <-ctx.Done():
		return ExecutionResult{Success: false, Error: ctx.Err().Error()}, ctx.Err()
	}
	defer func() { <-s.inflight }()

	ctx, span := s.tracer.Start(ctx, "sandbox.execute", trace.WithAttributes(
		attribute.String("sandbox.language", runtime.Language),
		attribute.String("sandbox.version", runtime.Version),
	))
	defer span.End()

	start := time.Now()
	result, err := s.executeWithRetry(ctx, runtime, code, stdin)
	execDuration.WithLabelValues(runtime.Language).Observe(time.Since(start).Seconds())

	if !result.Success {
		execFailures.WithLabelValues(runtime.Language).Inc()
		span.SetStatus(codes.Error, result.Error)
	}
	span.SetAttributes(attribute.Bool("sandbox.success", result.Success))

	return result, err
}

func (s *HTTPSandbox) executeWithRetry(ctx context.Context, runtime Runtime, code, stdin string) (ExecutionResult, error) {
	delay := s.retryDelay

	for attempt := 0; ; attempt++ {
		result, transientErr := s.executeOnce(ctx, runtime, code, stdin)
		if transientErr == nil {
			return result, nil
		}

		if attempt >= s.maxRetries {
			s.logger.Warn().
				Err(transientErr).
				Str("language", runtime.Language).
				Int("attempts", attempt+1).
				Msg("sandbox call failed after exhausting retries")
			return ExecutionResult{Success: false, Error: transientErr.Error()}, nil
		}

		execRetries.WithLabelValues(runtime.Language).Inc()
		s.logger.Debug().
			Err(transientErr).
			Str("language", runtime.Language).
			Dur("backoff", delay).
			Msg("retrying sandbox call")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ExecutionResult{Success: false, Error: ctx.Err().Error()}, ctx.Err()
		}
		delay *= 2
	}
}

// executeOnce performs a single sandbox round trip. The returned error marks
// a transient failure eligible for retry; terminal outcomes are encoded in
// the result instead.
func (s *HTTPSandbox) executeOnce(ctx context.Context, runtime Runtime, code, stdin string) (ExecutionResult, error) {
	payload := executeRequest{
		Language:   runtime.Language,
		Version:    runtime.Version,
		Files:      []requestFile{{Content: code}},
		Stdin:      stdin,
		RunTimeout: s.runTimeout.Milliseconds(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return ExecutionResult{}, fmt.Errorf("sandbox returned HTTP %d", resp.StatusCode)
	}

	var decoded executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ExecutionResult{}, fmt.Errorf("decode sandbox response: %w", err)
	}

	if strings.TrimSpace(decoded.Run.Stderr) != "" {
		return ExecutionResult{
			Success: false,
			Output:  decoded.Run.Output,
			Error:   strings.TrimSpace(decoded.Run.Stderr),
		}, nil
	}

	return ExecutionResult{Success: true, Output: decoded.Run.Output}, nil
}
