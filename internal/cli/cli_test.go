package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pfrederiksen/meteomu/internal/almanac"
)

// execute runs the root command with args and returns exit code, stdout and stderr
func execute(t *testing.T, sources map[string]Source, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	if args == nil {
		// cobra falls back to os.Args when given nil
		args = []string{}
	}

	cmd := newRootCmd(sources)
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	code := run(cmd, &stderr)
	return code, stdout.String(), stderr.String()
}

func stubSources() map[string]Source {
	cal := almanac.NewCalendar("january", "february")
	cal.Add("january", 5, almanac.Record{Rise: "06:10", Set: "18:20"})

	return map[string]Source{
		CommandSunrise: func(ctx context.Context) (interface{}, error) {
			return map[string]string{"sunrise": "05:45"}, nil
		},
		CommandMoonrise: func(ctx context.Context) (interface{}, error) {
			return cal, nil
		},
		CommandMoonPhase: func(ctx context.Context) (interface{}, error) {
			return almanac.PhaseCalendar{"january": {{Phase: almanac.PhaseFull, Day: "3", Time: "14:03"}}}, nil
		},
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "no command",
			args:       nil,
			wantCode:   ExitError,
			wantStderr: `{"error":"No command specified"}` + "\n",
		},
		{
			name:       "unknown command",
			args:       []string{"foo"},
			wantCode:   ExitError,
			wantStderr: `{"error":"Unknown command: foo"}` + "\n",
		},
		{
			name:       "unknown command keeps markup characters",
			args:       []string{"<moon>"},
			wantCode:   ExitError,
			wantStderr: `{"error":"Unknown command: <moon>"}` + "\n",
		},
		{
			name:       "unknown shorthand flag",
			args:       []string{"-foo"},
			wantCode:   ExitError,
			wantStderr: `{"error":"Unknown command: -foo"}` + "\n",
		},
		{
			name:       "unknown long flag",
			args:       []string{"--bogus=1", "sunrisemu"},
			wantCode:   ExitError,
			wantStderr: `{"error":"Unknown command: --bogus=1"}` + "\n",
		},
		{
			name:       "unknown flag after known flag with value",
			args:       []string{"--timeout", "2s", "-x"},
			wantCode:   ExitError,
			wantStderr: `{"error":"Unknown command: -x"}` + "\n",
		},
		{
			name:       "flag-shaped argument after the command is ignored",
			args:       []string{"sunrisemu", "-foo"},
			wantCode:   ExitSuccess,
			wantStdout: `{"sunrise":"05:45"}` + "\n",
		},
		{
			name:       "sunrise",
			args:       []string{"sunrisemu"},
			wantCode:   ExitSuccess,
			wantStdout: `{"sunrise":"05:45"}` + "\n",
		},
		{
			name:       "moonrise",
			args:       []string{"moonrisemu"},
			wantCode:   ExitSuccess,
			wantStdout: `{"february":{},"january":{"5":{"rise":"06:10","set":"18:20"}}}` + "\n",
		},
		{
			name:       "moon phase",
			args:       []string{"moonphasemu"},
			wantCode:   ExitSuccess,
			wantStdout: `{"january":[{"phase":"full","day":"3","time":"14:03"}]}` + "\n",
		},
		{
			name:       "extra arguments are ignored",
			args:       []string{"sunrisemu", "extra"},
			wantCode:   ExitSuccess,
			wantStdout: `{"sunrise":"05:45"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := execute(t, stubSources(), tt.args...)

			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if stdout != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout, tt.wantStdout)
			}
			if stderr != tt.wantStderr {
				t.Errorf("stderr = %q, want %q", stderr, tt.wantStderr)
			}
		})
	}
}

func TestHelp(t *testing.T) {
	for _, arg := range []string{"--help", "-h"} {
		t.Run(arg, func(t *testing.T) {
			code, stdout, stderr := execute(t, stubSources(), arg)

			if code != ExitSuccess {
				t.Errorf("exit code = %d, want %d", code, ExitSuccess)
			}
			if stderr != "" {
				t.Errorf("stderr = %q, want empty", stderr)
			}
			for _, want := range []string{"moonrisemu", "--timeout", "--archive-dir"} {
				if !strings.Contains(stdout, want) {
					t.Errorf("help output missing %q: %s", want, stdout)
				}
			}
		})
	}
}

func TestUnknownFlag(t *testing.T) {
	flags := newRootCmd(stubSources()).Flags()
	flags.BoolP("help", "h", false, "help")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no args", nil, ""},
		{"command only", []string{"sunrisemu"}, ""},
		{"known flags", []string{"--verbose", "--url", "http://x", "--timeout=2s", "moonrisemu"}, ""},
		{"flag value looks like a flag", []string{"--url", "-odd", "moonrisemu"}, ""},
		{"help shorthand", []string{"-h"}, ""},
		{"terminator", []string{"--", "-foo"}, ""},
		{"single dash", []string{"-"}, ""},
		{"unknown long", []string{"--bogus"}, "--bogus"},
		{"grouped shorthands", []string{"-hv"}, "-hv"},
		{"negative number", []string{"-1"}, "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unknownFlag(flags, tt.args); got != tt.want {
				t.Errorf("unknownFlag(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestDispatch_SourceFailures(t *testing.T) {
	tests := []struct {
		name      string
		source    Source
		wantError string
	}{
		{
			name: "provider error",
			source: func(ctx context.Context) (interface{}, error) {
				return nil, errors.New("ephemeris unavailable")
			},
			wantError: "ephemeris unavailable",
		},
		{
			name: "provider panic",
			source: func(ctx context.Context) (interface{}, error) {
				panic("index out of range")
			},
			wantError: "index out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources := stubSources()
			sources[CommandSunrise] = tt.source

			code, stdout, stderr := execute(t, sources, "sunrisemu")

			if code != ExitError {
				t.Errorf("exit code = %d, want %d", code, ExitError)
			}
			if stdout != "" {
				t.Errorf("stdout = %q, want empty", stdout)
			}

			var envelope almanac.Envelope
			if err := json.Unmarshal([]byte(stderr), &envelope); err != nil {
				t.Fatalf("stderr %q is not an envelope: %v", stderr, err)
			}
			if envelope.Error != tt.wantError {
				t.Errorf("error = %q, want %q", envelope.Error, tt.wantError)
			}
		})
	}
}

func TestDispatch_MissingDependency(t *testing.T) {
	sources := stubSources()
	delete(sources, CommandMoonPhase)

	code, stdout, stderr := execute(t, sources, "sunrisemu")

	if code != ExitError {
		t.Errorf("exit code = %d, want %d", code, ExitError)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	want := `{"error":"` + ErrMissingDependency.Error() + `"}` + "\n"
	if stderr != want {
		t.Errorf("stderr = %q, want %q", stderr, want)
	}
}

func TestMoonrise_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	code, stdout, stderr := execute(t, nil, "--url", url, "moonrisemu")

	if code != ExitSuccess {
		t.Errorf("exit code = %d, want %d", code, ExitSuccess)
	}
	if stdout != "{}\n" {
		t.Errorf("stdout = %q, want {}", stdout)
	}

	var envelope almanac.Envelope
	if err := json.Unmarshal([]byte(stderr), &envelope); err != nil {
		t.Fatalf("stderr %q is not an envelope: %v", stderr, err)
	}
	if !strings.HasPrefix(envelope.Error, "Failed to scrape moonrise data: ") {
		t.Errorf("error = %q", envelope.Error)
	}
}

func TestMoonrise_LivePage(t *testing.T) {
	page, err := os.ReadFile("../../testdata/fixtures/moonrise_mauritius.html")
	if err != nil {
		t.Fatalf("failed to load test fixture: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(page)
	}))
	defer server.Close()

	code, stdout, stderr := execute(t, nil, "--url", server.URL, "--timeout", "2s", "moonrisemu")

	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if stderr != "" {
		t.Errorf("stderr = %q, want empty", stderr)
	}

	var cal almanac.Calendar
	if err := json.Unmarshal([]byte(stdout), &cal); err != nil {
		t.Fatalf("stdout %q is not a calendar: %v", stdout, err)
	}
	if rec, ok := cal.Get("february", 2); !ok || rec.Set != "N/A" {
		t.Errorf("february 2 = %+v, %v", rec, ok)
	}
}

func TestInvalidTimeout(t *testing.T) {
	code, stdout, stderr := execute(t, nil, "--timeout", "soon", "moonrisemu")

	if code != ExitError {
		t.Errorf("exit code = %d, want %d", code, ExitError)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, `invalid timeout \"soon\"`) {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvMoonriseURL, "http://localhost:9999/moon")
	t.Setenv(EnvTimeout, "3s")
	t.Setenv(EnvArchiveDir, "/tmp/meteomu")

	cfg := configFromEnv()
	if cfg.MoonriseURL != "http://localhost:9999/moon" {
		t.Errorf("MoonriseURL = %q", cfg.MoonriseURL)
	}
	if cfg.Timeout != "3s" {
		t.Errorf("Timeout = %q", cfg.Timeout)
	}
	if cfg.ArchiveDir != "/tmp/meteomu" {
		t.Errorf("ArchiveDir = %q", cfg.ArchiveDir)
	}

	t.Setenv(EnvTimeout, "")
	if got := configFromEnv().Timeout; got != "10s" {
		t.Errorf("default Timeout = %q, want 10s", got)
	}
}

func TestArchive(t *testing.T) {
	dir := t.TempDir()

	code, stdout, stderr := execute(t, stubSources(), "--verbose", "--archive-dir", dir, "moonrisemu")
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "moonrisemu_*.json"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 archived result, got %v", matches)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"06:10"`) {
		t.Errorf("archive %s does not contain the result printed: %s", data, stdout)
	}
	if !strings.Contains(stderr, `"level":"INFO","message":"Archived result"`) {
		t.Errorf("stderr = %q, want an INFO line for the archived result", stderr)
	}
}

func TestVerboseLogsToStderr(t *testing.T) {
	code, stdout, stderr := execute(t, stubSources(), "--verbose", "sunrisemu")

	if code != ExitSuccess {
		t.Fatalf("exit code = %d", code)
	}
	if stdout != `{"sunrise":"05:45"}`+"\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, `"level":"DEBUG"`) || !strings.Contains(stderr, "Running command") {
		t.Errorf("stderr = %q, want debug log lines", stderr)
	}

	// Quiet runs restore the discarding logger
	_, _, stderr = execute(t, stubSources(), "sunrisemu")
	if stderr != "" {
		t.Errorf("stderr = %q, want empty", stderr)
	}
}
