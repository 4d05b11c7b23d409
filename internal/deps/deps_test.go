package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatal("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatal("expected detail message for missing binary")
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Name: "FFmpeg", Available: false},
		{Name: "FFprobe", Available: false, Optional: true},
		{Name: "Other", Available: true},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0] != "FFmpeg" {
		t.Fatalf("missing = %v", missing)
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if res := CheckDirectoryAccess("Output", dir); !res.Passed {
		t.Fatalf("expected writable temp dir to pass: %#v", res)
	}

	if res := CheckDirectoryAccess("Output", filepath.Join(dir, "missing")); res.Passed {
		t.Fatal("expected missing directory to fail")
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if res := CheckDirectoryAccess("Output", file); res.Passed {
		t.Fatal("expected plain file to fail")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()

	if res := CheckDiskSpace("Work dir", dir, 1); !res.Passed {
		t.Fatalf("expected one free byte: %#v", res)
	}

	// No filesystem has this much headroom.
	const absurd = 1 << 62
	res := CheckDiskSpace("Work dir", dir, absurd)
	if res.Passed {
		t.Fatal("expected absurd requirement to fail")
	}
	if !strings.Contains(res.Detail, "free") {
		t.Fatalf("detail should mention free space: %q", res.Detail)
	}
}

func TestCheckDisplay(t *testing.T) {
	if res := CheckDisplay(":7.0"); !res.Passed || res.Detail != ":7.0" {
		t.Fatalf("configured display: %#v", res)
	}

	t.Setenv("DISPLAY", ":9")
	if res := CheckDisplay(""); !res.Passed || res.Detail != ":9" {
		t.Fatalf("environment display: %#v", res)
	}

	t.Setenv("DISPLAY", "")
	if res := CheckDisplay(" "); res.Passed {
		t.Fatal("expected failure with no display anywhere")
	}
}

func TestVersionReturnsFirstLine(t *testing.T) {
	binDir := t.TempDir()
	stub := filepath.Join(binDir, "ffmpeg")
	script := []byte("#!/bin/sh\necho 'ffmpeg version 7.1 Copyright (c) 2000-2024'\necho 'built with gcc'\n")
	if err := os.WriteFile(stub, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	version, err := Version(stub)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "ffmpeg version 7.1 Copyright (c) 2000-2024" {
		t.Fatalf("unexpected version line: %q", version)
	}
}

func TestVersionFailsForMissingBinary(t *testing.T) {
	if _, err := Version("clearly-not-present-binary"); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
