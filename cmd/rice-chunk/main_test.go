package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ricesearch/rice-chunk/internal/bus"
	"github.com/ricesearch/rice-chunk/internal/index"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--tokenizer", "estimate"))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

const readme = "# Project\n\nAbout it.\n\n## Setup\n\nSteps.\n"

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "rice-chunk ") {
		t.Errorf("version output = %q", out)
	}
}

func TestChunkCmdRepository(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", readme)
	writeFile(t, dir, "docs/guide.md", "# Guide\n\nRead me.\n")
	writeFile(t, dir, "node_modules/pkg/README.md", "# Ignored\n")

	out, err := runCLI(t, "chunk", dir)
	if err != nil {
		t.Fatalf("chunk error = %v", err)
	}

	var records []index.Record
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var r index.Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		records = append(records, r)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Path != "README.md" || records[1].Path != "docs/guide.md" {
		t.Errorf("record paths = %s, %s", records[0].Path, records[1].Path)
	}
	if records[0].PrimaryNode != "section:Project" {
		t.Errorf("PrimaryNode = %q, want section:Project", records[0].PrimaryNode)
	}
}

func TestChunkCmdSingleFileYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "README.md", readme)

	out, err := runCLI(t, "chunk", path, "--format", "yaml")
	if err != nil {
		t.Fatalf("chunk error = %v", err)
	}

	var r index.Record
	if err := yaml.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, out)
	}
	if r.FileName != "README.md" || r.Language != "markdown" {
		t.Errorf("unexpected record: %+v", r)
	}
}

func TestChunkCmdState(t *testing.T) {
	dir := t.TempDir()
	state := t.TempDir()
	writeFile(t, dir, "README.md", readme)

	if _, err := runCLI(t, "chunk", dir, "--state", state); err != nil {
		t.Fatalf("first run error = %v", err)
	}

	out, err := runCLI(t, "chunk", dir, "--state", state, "--summary", "--format", "text")
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if !strings.Contains(out, "0 indexed, 1 skipped") {
		t.Errorf("summary = %q, want the unchanged file skipped", out)
	}
}

func TestChunkCmdMetricsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", readme)
	metricsPath := filepath.Join(t.TempDir(), "chunk.prom")

	if _, err := runCLI(t, "chunk", dir, "--metrics-file", metricsPath); err != nil {
		t.Fatalf("chunk error = %v", err)
	}

	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), `rice_chunk_files_total{status="indexed"} 1`) {
		t.Errorf("metrics = %s", data)
	}
}

func TestSegmentsCmd(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.md", "preface\n\n# One\n\ntext\n")

	out, err := runCLI(t, "segments", path, "--format", "text")
	if err != nil {
		t.Fatalf("segments error = %v", err)
	}
	if !strings.Contains(out, "section:One") {
		t.Errorf("segments output = %q, want section:One", out)
	}
}

func TestVerifyCmd(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, dir, "a.md", readme)
	documented := writeFile(t, dir, "b.md", "# Project\n\nAbout it, in more words.\n\n## Setup\n\nSteps.\n")
	renamed := writeFile(t, dir, "c.md", "# Project\n\nAbout it.\n\n## Install\n\nSteps.\n")

	out, err := runCLI(t, "verify", original, documented)
	if err != nil {
		t.Fatalf("verify error = %v", err)
	}
	if !strings.Contains(out, `"equivalent":true`) {
		t.Errorf("verify output = %q", out)
	}

	out, err = runCLI(t, "verify", original, renamed, "--format", "text")
	if err == nil {
		t.Fatal("verify should fail for a renamed section")
	}
	if !strings.Contains(out, "mismatch") {
		t.Errorf("verify output = %q, want mismatch", out)
	}
}

func TestReplayCmdRequiresBus(t *testing.T) {
	t.Setenv("RICE_BUS_TYPE", "none")

	log := writeFile(t, t.TempDir(), "events.jsonl", "")
	if _, err := runCLI(t, "replay", log); err == nil {
		t.Error("replay without a bus should fail")
	}
}

func TestMemoryBusRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "README.md", readme)
	log := writeFile(t, dir, "events.jsonl", "")

	t.Setenv("RICE_BUS_TYPE", "memory")
	if _, err := runCLI(t, "chunk", path); err == nil {
		t.Error("chunk onto the memory bus should fail")
	}
	if _, err := runCLI(t, "replay", log); err == nil {
		t.Error("replay onto the memory bus should fail")
	}
	if _, err := runCLI(t, "tail"); err == nil {
		t.Error("tail on the memory bus without --from should fail")
	}
}

func TestTailCmdFromEventLog(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "events.jsonl")
	writeFile(t, dir, "README.md", readme)

	t.Setenv("RICE_BUS_TYPE", "none")
	t.Setenv("RICE_BUS_EVENT_LOG", log)
	if _, err := runCLI(t, "chunk", filepath.Join(dir, "README.md")); err != nil {
		t.Fatalf("chunk error = %v", err)
	}

	logged, err := bus.ReadEvents(log, time.Time{}, 0)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	if len(logged) == 0 {
		t.Fatal("event log is empty")
	}

	out, err := runCLI(t, "tail", "--from", log)
	if err != nil {
		t.Fatalf("tail error = %v", err)
	}

	var deliveries []bus.Delivery
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var d bus.Delivery
		if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		deliveries = append(deliveries, d)
	}
	if len(deliveries) != len(logged) {
		t.Fatalf("tail printed %d events, want %d", len(deliveries), len(logged))
	}
	for _, d := range deliveries {
		if d.Topic == bus.TopicChunks && d.Event.Type != bus.TypeChunkRecord {
			t.Errorf("event on %s has type %q", d.Topic, d.Event.Type)
		}
	}

	out, err = runCLI(t, "tail", "--from", log, "--topic", bus.TopicChunks, "--limit", "1", "--format", "text")
	if err != nil {
		t.Fatalf("tail --limit error = %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 1 || !strings.HasPrefix(lines[0], bus.TopicChunks+"\t"+bus.TypeChunkRecord) {
		t.Errorf("tail --limit 1 output = %q", out)
	}
}

func TestUnknownFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "README.md", readme)
	if _, err := runCLI(t, "chunk", path, "--format", "xml"); err == nil {
		t.Error("unknown format should fail")
	}
}
