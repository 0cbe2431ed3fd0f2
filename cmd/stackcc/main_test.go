package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stackcc/pkg/compiler"
	"stackcc/pkg/config"
)

func noEnv(string) string { return "" }

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-color", "never"}, args...), strings.NewReader(stdin), &stdout, &stderr, noEnv)
	return code, stdout.String(), stderr.String()
}

func TestCompileArgument(t *testing.T) {
	code, out, errOut := runCLI(t, "", "1+2*3;")
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	want, err := compiler.Compile("1+2*3;")
	if err != nil {
		t.Fatal(err)
	}
	if out != strings.Join(want, "\n")+"\n" {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1+2*3;", "7\n"},
		{"(1+2)*3;", "9\n"},
		{"a=3;a+2;", "5\n"},
		{"-5+8;", "3\n"},
	}
	for _, tt := range tests {
		code, out, errOut := runCLI(t, "", "-run", tt.src)
		if code != exitOK {
			t.Fatalf("%s: exit %d: %s", tt.src, code, errOut)
		}
		if out != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.src, tt.want, out)
		}
	}
}

func TestRuntimeError(t *testing.T) {
	code, _, errOut := runCLI(t, "", "-run", "1/0;")
	if code != exitFail {
		t.Fatalf("expected exit %d, got %d", exitFail, code)
	}
	if !strings.Contains(errOut, "divide by zero") {
		t.Errorf("expected divide by zero, got %q", errOut)
	}
}

func TestCompileErrorShowsCaret(t *testing.T) {
	code, out, errOut := runCLI(t, "", "1+;")
	if code != exitFail {
		t.Fatalf("expected exit %d, got %d", exitFail, code)
	}
	if out != "" {
		t.Errorf("expected no assembly on error, got %q", out)
	}
	lines := strings.Split(errOut, "\n")
	if len(lines) < 3 || lines[0] != "<arg>:1:3:" || lines[1] != "1+;" || !strings.HasPrefix(lines[2], "  ^ parse error: ") {
		t.Errorf("unexpected diagnostic:\n%s", errOut)
	}
}

func TestStdinAndFile(t *testing.T) {
	code, out, _ := runCLI(t, "x=4;x*x;", "-run", "-f", "-")
	if code != exitOK || out != "16\n" {
		t.Errorf("stdin: exit %d, output %q", code, out)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "prog.txt")
	if err := os.WriteFile(path, []byte("a=b=2;\na+b;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, _ = runCLI(t, "", "-run", "-f", path)
	if code != exitOK || out != "4\n" {
		t.Errorf("file: exit %d, output %q", code, out)
	}
}

func TestOutputFileAndCheck(t *testing.T) {
	dir := t.TempDir()
	golden := filepath.Join(dir, "golden.s")

	code, out, errOut := runCLI(t, "", "-o", golden, "a=1;")
	if code != exitOK || out != "" {
		t.Fatalf("-o: exit %d, stdout %q, stderr %q", code, out, errOut)
	}

	code, _, errOut = runCLI(t, "", "-check", golden, "-o", filepath.Join(dir, "again.s"), "a=1;")
	if code != exitOK {
		t.Fatalf("matching -check failed: %s", errOut)
	}

	code, _, errOut = runCLI(t, "", "-check", golden, "a=2;")
	if code != exitFail {
		t.Fatalf("expected mismatch to exit %d, got %d", exitFail, code)
	}
	if !strings.Contains(errOut, "-  push 1") || !strings.Contains(errOut, "+  push 2") {
		t.Errorf("expected unified diff, got:\n%s", errOut)
	}
}

func TestDumpModes(t *testing.T) {
	code, out, _ := runCLI(t, "", "-tokens", "-ast", "-run", "x>1;")
	if code != exitOK {
		t.Fatalf("exit %d", code)
	}
	for _, want := range []string{"Tokens (5)", "IDENTIFIER", "AST", "Lt(Num(1), Var(x))", "0\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEntryAndCommentsFlags(t *testing.T) {
	code, out, _ := runCLI(t, "", "-entry", "start", "-comments", "a=1;")
	if code != exitOK {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out, ".globl start\nstart:\n") || !strings.Contains(out, "  # (a = 1)\n") {
		t.Errorf("flags not applied:\n%s", out)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	if err := os.WriteFile(path, []byte("entry = \"go\"\n[run]\nmax_steps = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runCLI(t, "", "-config", path, "-run", "1+2;")
	if code != exitFail || !strings.Contains(errOut, "step limit") {
		t.Errorf("expected step limit from settings, got exit %d: %s", code, errOut)
	}
}

func TestUsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"1;", "2;"},
		{"-f", "x", "1;"},
		{"-nosuchflag"},
		{"-color", "purple", "1;"},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		if code := run(args, strings.NewReader(""), &stdout, &stderr, noEnv); code != exitUsage {
			t.Errorf("%q: expected exit %d, got %d", args, exitUsage, code)
		}
	}
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "", "-version")
	if code != exitOK || out != "stackcc dev\n" {
		t.Errorf("unexpected version output %q (exit %d)", out, code)
	}
}

func TestTelemetryConfig(t *testing.T) {
	env := map[string]string{"STACKCC_OTEL_ENDPOINT": "collector:4317", "STACKCC_OTEL_INSECURE": "true"}
	settings := mustDefaults(t)
	settings.Telemetry.ServiceName = "from-file"
	cfg := telemetryConfig(settings, func(k string) string { return env[k] })
	if cfg.Endpoint != "collector:4317" || !cfg.Insecure || cfg.ServiceName != "from-file" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func mustDefaults(t *testing.T) config.Settings {
	t.Helper()
	s, err := config.Normalise(config.Settings{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestVerboseReportsSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("comments: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runCLI(t, "", "-v", "-config", path, "1;")
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if want := "stackcc: settings: " + path + " (yaml)\n"; errOut != want {
		t.Errorf("expected %q, got %q", want, errOut)
	}

	code, _, errOut = runCLI(t, "", "-v", "1;")
	if code != exitOK || errOut != "stackcc: settings: built-in defaults\n" {
		t.Errorf("unexpected defaults report %q (exit %d)", errOut, code)
	}
}
