package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"modhost/internal/config"
)

const pingModule = `package main

import "modhost/pkg/api"

func Load() api.Descriptor {
	return api.Descriptor{
		Meta: api.Metadata{Name: "Ping", Requires: []string{api.ModuleSignals}, Optional: []string{"Metrics"}},
	}
}
`

func moduleSource(name string, requires ...string) string {
	quoted := make([]string, len(requires))
	for i, r := range requires {
		quoted[i] = `"` + r + `"`
	}
	return `package main

import "modhost/pkg/api"

func Load() api.Descriptor {
	return api.Descriptor{Meta: api.Metadata{Name: "` + name + `", Requires: []string{` + strings.Join(quoted, ", ") + `}}}
}
`
}

func writeModule(t *testing.T, dir, file, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(src), 0644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
}

func setupCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.Kernel.TickRate = 0
	cfg.Jobs.Workers = 2
	maxTicks = 0

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestRootRequiresModuleDir(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected an error without a module directory")
	}
	if !strings.Contains(err.Error(), "accepts 1 arg") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Fatalf("expected usage text, got: %s", out.String())
	}
}

func TestRunKernelStopsAfterTicks(t *testing.T) {
	cmd, _ := setupCommand(t)
	dir := t.TempDir()
	writeModule(t, dir, "ping.go", pingModule)
	maxTicks = 3
	defer func() { maxTicks = 0 }()

	if err := runKernel(cmd, []string{dir}); err != nil {
		t.Fatalf("runKernel returned error: %v", err)
	}
}

func TestRunKernelBootFailure(t *testing.T) {
	cmd, _ := setupCommand(t)
	dir := t.TempDir()
	writeModule(t, dir, "orphan.go", moduleSource("Orphan", "Nowhere"))
	maxTicks = 1
	defer func() { maxTicks = 0 }()

	err := runKernel(cmd, []string{dir})
	if err == nil || !strings.Contains(err.Error(), "boot failed") {
		t.Fatalf("expected boot failure, got: %v", err)
	}
}

func TestInspectRendersOrder(t *testing.T) {
	cmd, out := setupCommand(t)
	dir := t.TempDir()
	writeModule(t, dir, "ping.go", pingModule)
	writeModule(t, dir, "broken.go", "package main\nfunc Load( {")

	if err := runInspect(cmd, []string{dir}); err != nil {
		t.Fatalf("runInspect returned error: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Signals", "Ping", "requires: Signals", "optional: Metrics", "optional dependency Metrics not found", "load error:"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
	if strings.Index(got, "Signals") > strings.Index(got, "Ping") {
		t.Fatalf("Signals should be listed before Ping:\n%s", got)
	}
}

func TestInspectReportsCycle(t *testing.T) {
	cmd, out := setupCommand(t)
	dir := t.TempDir()
	writeModule(t, dir, "a.go", moduleSource("Alpha", "Beta"))
	writeModule(t, dir, "b.go", moduleSource("Beta", "Alpha"))

	err := runInspect(cmd, []string{dir})
	if err == nil {
		t.Fatal("expected a resolution error")
	}
	if !strings.Contains(out.String(), "dependency cycle") {
		t.Fatalf("expected cycle in output:\n%s", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	cmd, out := setupCommand(t)
	if err := versionCmd.RunE(cmd, nil); err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if !strings.Contains(out.String(), "modhost dev") {
		t.Fatalf("unexpected version output: %s", out.String())
	}
}

func TestInspectSampleModules(t *testing.T) {
	cmd, out := setupCommand(t)
	if err := runInspect(cmd, []string{filepath.Join("testdata", "modules")}); err != nil {
		t.Fatalf("runInspect returned error: %v", err)
	}

	got := out.String()
	if strings.Contains(got, "load error") {
		t.Fatalf("sample modules failed to load:\n%s", got)
	}
	if strings.Index(got, "Heartbeat") > strings.Index(got, "Janitor") {
		t.Fatalf("Heartbeat should be ordered before Janitor:\n%s", got)
	}
}

func TestRunKernelSampleModules(t *testing.T) {
	cmd, _ := setupCommand(t)
	maxTicks = 5
	defer func() { maxTicks = 0 }()

	if err := runKernel(cmd, []string{filepath.Join("testdata", "modules")}); err != nil {
		t.Fatalf("runKernel returned error: %v", err)
	}
}
