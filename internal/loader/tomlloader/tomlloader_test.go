package tomlloader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/loader/tomlloader"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadPlansDropsDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plan.toml", `
[plan.enabled]
type = "query"
enable = true
interval.second = 5

[plan.disabled]
type = "query"
enable = false
interval.second = 5
`)

	l := tomlloader.New(dir, false)
	plans, err := l.LoadPlans()
	if err != nil {
		t.Fatalf("LoadPlans: %v", err)
	}
	if _, ok := plans["disabled"]; ok {
		t.Fatalf("expected disabled plan to be filtered out, got %+v", plans)
	}
	p, ok := plans["enabled"]
	if !ok {
		t.Fatalf("expected enabled plan to be present, got %+v", plans)
	}
	if p.Name != "enabled" {
		t.Fatalf("expected plan name to be populated from the table key, got %q", p.Name)
	}
}

func TestLoadPlansOnceCachesFirstRead(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plan.toml", `
[plan.p1]
type = "query"
enable = true
interval.second = 5
`)

	l := tomlloader.New(dir, true)
	first, err := l.LoadPlans()
	if err != nil {
		t.Fatalf("LoadPlans: %v", err)
	}
	if _, ok := first["p1"]; !ok {
		t.Fatalf("expected p1 in first load")
	}

	writeFile(t, dir, "plan.toml", `
[plan.p2]
type = "query"
enable = true
interval.second = 5
`)

	second, err := l.LoadPlans()
	if err != nil {
		t.Fatalf("LoadPlans (cached): %v", err)
	}
	if _, ok := second["p1"]; !ok {
		t.Fatalf("expected cached load to still return p1 despite the file changing")
	}
}
