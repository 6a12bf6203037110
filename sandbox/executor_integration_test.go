package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// requireSandboxImage skips unless docker is usable and the sandbox image is
// present locally. Build it with: docker build -t hackscout-sandbox:latest sandbox/image
func requireSandboxImage(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	if err := exec.Command("docker", "info").Run(); err != nil {
		t.Skip("docker daemon not available")
	}
	if err := exec.Command("docker", "image", "inspect", DefaultImage).Run(); err != nil {
		t.Skipf("sandbox image %s not built", DefaultImage)
	}
}

func TestExecuteReturnsRecords(t *testing.T) {
	requireSandboxImage(t)

	e := NewDockerExecutor("")
	out, err := e.Execute(context.Background(), ExecutionRequest{
		Code:      "def extract_hackathons(url):\n    return [{\"title\": \"Sample Hack\", \"url\": url}]",
		TargetURL: "https://example.com/hackathons",
		Limits:    Limits{Timeout: 2 * time.Minute},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeSuccess {
		t.Fatalf("kind = %q (stderr: %s)", out.Kind, out.Stderr)
	}
	if len(out.Records) != 1 || out.Records[0]["title"] != "Sample Hack" {
		t.Errorf("records = %v", out.Records)
	}
	if out.Records[0]["url"] != "https://example.com/hackathons" {
		t.Error("target URL did not reach the extractor")
	}
}

func TestExecuteKillsHungExtractor(t *testing.T) {
	requireSandboxImage(t)

	e := NewDockerExecutor("")
	start := time.Now()
	out, err := e.Execute(context.Background(), ExecutionRequest{
		Code:      "def extract_hackathons(url):\n    while True:\n        pass",
		TargetURL: "https://example.com/hackathons",
		Limits:    Limits{Timeout: 10 * time.Second},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeTimeout {
		t.Fatalf("kind = %q, want timeout (stderr: %s)", out.Kind, out.Stderr)
	}
	if elapsed := time.Since(start); elapsed > time.Minute {
		t.Errorf("hung extractor held the caller for %s", elapsed)
	}
}

func TestExecuteBlocksFileAccess(t *testing.T) {
	requireSandboxImage(t)

	e := NewDockerExecutor("")
	out, err := e.Execute(context.Background(), ExecutionRequest{
		Code:      "def extract_hackathons(url):\n    open(\"/tmp/x\", \"w\").write(\"data\")\n    return []",
		TargetURL: "https://example.com/hackathons",
		Limits:    Limits{Timeout: 2 * time.Minute},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeRuntimeFailure {
		t.Fatalf("kind = %q, want runtime_failure: open must not be reachable", out.Kind)
	}
	if !strings.Contains(out.Stderr, "open") {
		t.Errorf("diagnostics missing offending name: %s", out.Stderr)
	}
}

func TestExecuteBlocksImports(t *testing.T) {
	requireSandboxImage(t)

	e := NewDockerExecutor("")
	out, err := e.Execute(context.Background(), ExecutionRequest{
		Code:      "import os\n\ndef extract_hackathons(url):\n    return [{\"title\": os.environ.get(\"HOME\", \"\")}]",
		TargetURL: "https://example.com/hackathons",
		Limits:    Limits{Timeout: 2 * time.Minute},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeRuntimeFailure {
		t.Fatalf("kind = %q, want runtime_failure: import must not be reachable", out.Kind)
	}
}
