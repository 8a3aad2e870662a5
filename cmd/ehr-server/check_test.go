package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const vitalsQuestionnaire = `{
  "title": "Vitals",
  "status": "active",
  "questions": [
    {"id": "q-smoker", "link_id": "1", "type": "boolean", "required": true},
    {"id": "q-packs", "link_id": "2", "type": "integer", "required": true,
     "code": {"system": "http://loinc.org", "code": "8664-5"},
     "enable_when": [{"question": "1", "operator": "equals", "answer": "true"}]},
    {"id": "q-weight", "link_id": "3", "type": "decimal",
     "code": {"system": "http://loinc.org", "code": "29463-7"}}
  ]
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestRunCheck_Accepted(t *testing.T) {
	dir := t.TempDir()
	opts := checkOptions{
		questionnairePath: writeFile(t, dir, "q.json", vitalsQuestionnaire),
		submissionPath: writeFile(t, dir, "s.json", `{
  "resource_id": "8a6b1f0e-5c2d-4f7a-9b1e-3d2c1b0a9f8e",
  "patient": "8a6b1f0e-5c2d-4f7a-9b1e-3d2c1b0a9f8e",
  "results": [
    {"question_id": "q-smoker", "values": [{"value": "false"}]},
    {"question_id": "q-packs", "values": [{"value": "not a number"}]},
    {"question_id": "q-weight", "values": [{"value": "72.5"}]}
  ]
}`),
		maxTextLength: 100,
	}

	var out bytes.Buffer
	if err := runCheck(context.Background(), &out, opts); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out.String())
	}
	body := out.String()
	if !strings.Contains(body, `"q-packs"`) {
		t.Errorf("expected q-packs listed as disabled, got %s", body)
	}
	if !strings.Contains(body, `"29463-7"`) {
		t.Errorf("expected a weight observation, got %s", body)
	}
}

func TestRunCheck_Rejected(t *testing.T) {
	dir := t.TempDir()
	opts := checkOptions{
		questionnairePath: writeFile(t, dir, "q.json", vitalsQuestionnaire),
		submissionPath: writeFile(t, dir, "s.json", `{
  "resource_id": "8a6b1f0e-5c2d-4f7a-9b1e-3d2c1b0a9f8e",
  "patient": "8a6b1f0e-5c2d-4f7a-9b1e-3d2c1b0a9f8e",
  "results": [
    {"question_id": "q-smoker", "values": [{"value": "true"}]},
    {"question_id": "q-packs", "values": [{"value": "many"}]}
  ]
}`),
		maxTextLength: 100,
	}

	var out bytes.Buffer
	err := runCheck(context.Background(), &out, opts)
	if !errors.Is(err, errSubmissionRejected) {
		t.Fatalf("expected errSubmissionRejected, got %v", err)
	}
	if !strings.Contains(out.String(), "Invalid integer") {
		t.Errorf("expected type error in output, got %s", out.String())
	}
}

func TestRunCheck_RequireRepetitions(t *testing.T) {
	dir := t.TempDir()
	q := writeFile(t, dir, "q.json", `{
  "title": "Medications",
  "status": "active",
  "questions": [
    {"id": "g-meds", "link_id": "1", "type": "group", "repeats": true, "required": true,
     "questions": [{"id": "q-drug", "link_id": "1.1", "type": "string"}]}
  ]
}`)
	s := writeFile(t, dir, "s.json", `{
  "resource_id": "8a6b1f0e-5c2d-4f7a-9b1e-3d2c1b0a9f8e",
  "patient": "8a6b1f0e-5c2d-4f7a-9b1e-3d2c1b0a9f8e",
  "results": []
}`)

	opts := checkOptions{questionnairePath: q, submissionPath: s, maxTextLength: 100}
	if err := runCheck(context.Background(), &bytes.Buffer{}, opts); err != nil {
		t.Fatalf("expected an empty repeating group to pass by default, got %v", err)
	}

	opts.requireRepetitions = true
	var out bytes.Buffer
	if err := runCheck(context.Background(), &out, opts); !errors.Is(err, errSubmissionRejected) {
		t.Fatalf("expected errSubmissionRejected, got %v", err)
	}
	if !strings.Contains(out.String(), `"g-meds"`) {
		t.Errorf("expected g-meds reported as missing, got %s", out.String())
	}
}

func TestRunCheck_InvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	opts := checkOptions{
		questionnairePath: writeFile(t, dir, "q.json", `{"title": "  ", "questions": []}`),
		submissionPath:    writeFile(t, dir, "s.json", `{"results": []}`),
	}
	if err := runCheck(context.Background(), &bytes.Buffer{}, opts); err == nil {
		t.Fatal("expected error for blank title")
	}
}

func TestRunCheck_MissingFile(t *testing.T) {
	opts := checkOptions{questionnairePath: "/nonexistent/q.json", submissionPath: "/nonexistent/s.json"}
	if err := runCheck(context.Background(), &bytes.Buffer{}, opts); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewLogger_Level(t *testing.T) {
	l := newLogger("production", "warn")
	if l.GetLevel().String() != "warn" {
		t.Errorf("expected warn level, got %s", l.GetLevel())
	}
}
