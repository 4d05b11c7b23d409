package main

import (
	"testing"

	"deskrec/internal/testsupport"
)

func TestDepsReportsStubbedBinaries(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	t.Setenv("DISPLAY", ":0")

	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "FFprobe (optional)")
	requireContains(t, out, "Output dir")
	requireContains(t, out, "Free space")
}

func TestDepsFailsGracefullyWithoutBinaries(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("PATH", testsupport.BaseDir(env.cfg))
	t.Setenv("DISPLAY", ":0")

	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	requireContains(t, out, "missing")
}
