package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
)

// TestHelperProcess is a subprocess entrypoint used by tests.
//
// This pattern allows tests to execute main() and observe:
//   - process exit codes (including os.Exit),
//   - stdout/stderr output,
//
// without terminating the parent "go test" process.
//
// The parent test runs the current test binary with:
//
//	-test.run=TestHelperProcess
//
// and sets GO_WANT_HELPER_PROCESS=1.
//
// Any arguments after a literal "--" are treated as CLI args for the command.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	// Rebuild os.Args to contain only the command arguments passed after "--".
	args := os.Args
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
	}
	if i < len(args) {
		os.Args = append([]string{args[0]}, args[i+1:]...)
	} else {
		// No args were provided; keep argv0 only.
		os.Args = []string{args[0]}
	}

	main()
	os.Exit(0)
}

// runCmd executes the command's main() in a subprocess and returns the captured
// stdout, stderr, and the process exit code.
//
// The subprocess is the current test binary, re-invoked with
// -test.run=TestHelperProcess, so it runs on all platforms supported by Go tests.
func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	cmdArgs := []string{"-test.run=TestHelperProcess", "--"}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	// Exit code handling: nil means exit 0.
	if err == nil {
		return stdout, stderr, 0
	}

	// For non-zero exits, Go returns *exec.ExitError.
	if ee, ok := err.(*exec.ExitError); ok {
		return stdout, stderr, ee.ExitCode()
	}

	// Unexpected error type (e.g., binary not runnable). Fail loudly.
	t.Fatalf("unexpected run error: %T: %v", err, err)
	return "", "", 1
}

// menuServer serves a listing with two product links; only the first
// product page exists.
func menuServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/menu.html", func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 2; i++ {
			fmt.Fprintf(w, `<a class="cmp-category__item-link" href="/product/%d.html">%d</a>`, i, i)
		}
	})
	mux.HandleFunc("/product/0.html", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<div class="cmp-product-details-main">
<h1 class="cmp-product-details-main__heading-title">Біг Мак</h1>
<div class="cmp-nutrition-summary__heading-primary-item"><span class="value">540 ккал</span><span class="metric">Калорійність</span></div>
</div>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMain_TextReport(t *testing.T) {
	t.Parallel()

	srv := menuServer(t)
	stdout, stderr, code := runCmd(t, "-url", srv.URL+"/menu.html")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	for _, want := range []string{"product links: 2", "coverage (2 pages)", `"Біг Мак"`} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestMain_JSONReport(t *testing.T) {
	t.Parallel()

	srv := menuServer(t)
	stdout, stderr, code := runCmd(t, "-url", srv.URL+"/menu.html", "-json", "-sample", "1")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstderr:\n%s", code, stderr)
	}

	var rep struct {
		Links []string `json:"links"`
		Pages []struct {
			URL string `json:"url"`
		} `json:"pages"`
	}
	if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
		t.Fatalf("stdout is not valid JSON: %v\nstdout:\n%s", err, stdout)
	}
	if len(rep.Links) != 2 || len(rep.Pages) != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestMain_StrictFailsOnGaps(t *testing.T) {
	t.Parallel()

	srv := menuServer(t)
	_, stderr, code := runCmd(t, "-url", srv.URL+"/menu.html", "-strict")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d\nstderr:\n%s", code, stderr)
	}
	if !strings.Contains(stderr, "never populated: description") {
		t.Fatalf("unexpected stderr:\n%s", stderr)
	}
}

func TestMain_MissingURL_ExitsWith2AndPrintsMessage(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t /* no args */)

	// The command explicitly os.Exit(2) when -url is missing.
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	if !strings.Contains(stderr, "missing -url") {
		t.Fatalf("expected missing -url message on stderr, got:\n%s", stderr)
	}
}
