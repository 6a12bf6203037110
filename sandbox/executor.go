// Package sandbox runs untrusted, LLM-generated Python extractors inside
// hardened, single-use Docker containers.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Limits caps one sandboxed execution. Zero fields fall back to defaults.
type Limits struct {
	Timeout   time.Duration
	MemoryMB  int
	CPUs      float64
	PidsLimit int
}

// DefaultLimits returns the standard caps for scraper execution.
func DefaultLimits() Limits {
	return Limits{
		Timeout:   60 * time.Second,
		MemoryMB:  512,
		CPUs:      1.0,
		PidsLimit: 128,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	if l.MemoryMB <= 0 {
		l.MemoryMB = d.MemoryMB
	}
	if l.CPUs <= 0 {
		l.CPUs = d.CPUs
	}
	if l.PidsLimit <= 0 {
		l.PidsLimit = d.PidsLimit
	}
	return l
}

// OutcomeKind classifies how a sandboxed execution ended.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeRuntimeFailure OutcomeKind = "runtime_failure"
	OutcomeTimeout        OutcomeKind = "timeout"
	OutcomeResourceLimit  OutcomeKind = "resource_limit_exceeded"
)

// Outcome is the classified result of one execution. Records is populated
// only for OutcomeSuccess; Stderr carries truncated diagnostics otherwise.
type Outcome struct {
	Kind     OutcomeKind
	Records  []map[string]any
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExecutionRequest carries one extractor invocation.
type ExecutionRequest struct {
	Code      string
	TargetURL string
	Limits    Limits
}

// DockerExecutor executes extractors with `docker run`. Each invocation gets
// a fresh container that is removed unconditionally afterwards, even when
// the caller's context is cancelled mid-run.
type DockerExecutor struct {
	image string
}

// DefaultImage is built from sandbox/image/Dockerfile: python3 plus the
// allow-listed libraries (requests, beautifulsoup4) and nothing else.
const DefaultImage = "hackscout-sandbox:latest"

func NewDockerExecutor(image string) *DockerExecutor {
	if strings.TrimSpace(image) == "" {
		image = DefaultImage
	}
	return &DockerExecutor{image: image}
}

const maxStderrBytes = 4000

// stdinPayload is the out-of-band channel for code and URL. Passing them on
// stdin keeps untrusted text out of argv and the process environment.
type stdinPayload struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

// Execute runs one extractor against one URL. The returned error covers
// host-side misuse only; everything the untrusted code does, including
// crashing or hanging, comes back as a classified Outcome.
func (e *DockerExecutor) Execute(ctx context.Context, req ExecutionRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("empty extractor code")
	}
	if strings.TrimSpace(req.TargetURL) == "" {
		return nil, fmt.Errorf("empty target URL")
	}
	limits := req.Limits.withDefaults()

	runnerFile, err := os.CreateTemp("", "hackscout-runner-*.py")
	if err != nil {
		return nil, fmt.Errorf("failed to write runner harness: %v", err)
	}
	defer os.Remove(runnerFile.Name())
	if _, err := runnerFile.WriteString(runnerSource); err != nil {
		runnerFile.Close()
		return nil, fmt.Errorf("failed to write runner harness: %v", err)
	}
	runnerFile.Close()

	payload, err := json.Marshal(stdinPayload{Code: req.Code, URL: req.TargetURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sandbox input: %v", err)
	}

	containerName := fmt.Sprintf("hackscout-sandbox-%d", time.Now().UnixNano())
	// The container must die with the request: remove it in a defer rather
	// than trusting --rm alone, so a cancelled parent never leaks a sandbox.
	defer removeContainer(containerName)

	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	args := buildDockerArgs(e.image, containerName, runnerFile.Name(), limits)
	log.Printf("🐳 [SANDBOX] Executing extractor for %s (timeout %s, mem %dMB)", req.TargetURL, limits.Timeout, limits.MemoryMB)

	cmd := exec.CommandContext(runCtx, "docker", args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	outcome := classify(runErr, runCtx.Err(), stdout.Bytes(), stderr.String())
	outcome.Duration = elapsed

	switch outcome.Kind {
	case OutcomeSuccess:
		log.Printf("✅ [SANDBOX] Extractor returned %d records in %s", len(outcome.Records), elapsed.Round(time.Millisecond))
	case OutcomeTimeout:
		log.Printf("⏱️ [SANDBOX] Extractor timed out after %s", elapsed.Round(time.Millisecond))
	default:
		log.Printf("❌ [SANDBOX] Extractor failed (%s, exit %d): %s", outcome.Kind, outcome.ExitCode, firstLine(outcome.Stderr))
	}
	return outcome, nil
}

// buildDockerArgs assembles the hardened docker run invocation: no
// capabilities, no privilege escalation, read-only rootfs with a small tmpfs
// scratch, pids/memory/CPU caps, outbound-only bridge network. The runner
// harness is the only mount and it is read-only.
func buildDockerArgs(image, containerName, runnerPath string, limits Limits) []string {
	return []string{
		"run",
		"--rm",
		"-i",
		"--name", containerName,
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
		"--read-only",
		"--tmpfs", "/tmp:rw,nosuid,size=64m",
		"--pids-limit", fmt.Sprintf("%d", limits.PidsLimit),
		"--memory", fmt.Sprintf("%dm", limits.MemoryMB),
		"--cpus", fmt.Sprintf("%.2f", limits.CPUs),
		"--network", "bridge",
		"-v", runnerPath + ":/sandbox/runner.py:ro",
		image,
		"python3", "/sandbox/runner.py",
	}
}

// oomExitCode is what Docker reports when the kernel kills the container for
// exceeding its memory limit.
const oomExitCode = 137

// classify turns raw process results into a tagged Outcome. The caller must
// be able to tell "code ran and returned nothing" from "code crashed" from
// "code hung" from "code was killed for resource abuse".
func classify(runErr, ctxErr error, stdout []byte, stderr string) *Outcome {
	stderr = truncate(strings.TrimSpace(stderr), maxStderrBytes)

	if ctxErr == context.DeadlineExceeded {
		return &Outcome{Kind: OutcomeTimeout, Stderr: stderr, ExitCode: -1}
	}

	if runErr != nil {
		exitCode := 1
		var ee interface{ ExitCode() int }
		if errors.As(runErr, &ee) {
			exitCode = ee.ExitCode()
		}
		if exitCode == oomExitCode {
			return &Outcome{Kind: OutcomeResourceLimit, Stderr: stderr, ExitCode: exitCode}
		}
		if stderr == "" {
			stderr = runErr.Error()
		}
		return &Outcome{Kind: OutcomeRuntimeFailure, Stderr: stderr, ExitCode: exitCode}
	}

	// Success channel contract: exactly one JSON array on stdout. A junk
	// element inside the array costs only itself: it becomes a nil record,
	// which normalization drops and counts, never a failed batch.
	var elements []any
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &elements); err != nil {
		return &Outcome{
			Kind:     OutcomeRuntimeFailure,
			Stderr:   fmt.Sprintf("extractor stdout is not a JSON record list: %v", err),
			ExitCode: 0,
		}
	}
	records := make([]map[string]any, 0, len(elements))
	for _, e := range elements {
		m, _ := e.(map[string]any)
		records = append(records, m)
	}
	return &Outcome{Kind: OutcomeSuccess, Records: records}
}

func removeContainer(name string) {
	_ = exec.Command("docker", "rm", "-f", name).Run()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
