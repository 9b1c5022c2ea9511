package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/boardstate/pkg/model"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
	"github.com/vanderheijden86/boardstate/pkg/testutil"
)

// isolate points every config and data lookup at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("KANBAN_FILE", "")
	t.Setenv("KANBAN_BACKEND", "")
	t.Setenv("KANBAN_FORCE_POLLING", "")
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := runCLI(t, args...)
	if code != exitOK {
		t.Fatalf("run(%v) = %d, stderr:\n%s", args, code, errOut)
	}
	return out
}

func TestVersion(t *testing.T) {
	isolate(t)
	out := mustRun(t, "-version")
	if !strings.HasPrefix(out, "kanban ") {
		t.Errorf("-version printed %q", out)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"positional", []string{"extra"}},
		{"two actions", []string{"-add-board", "A", "-add-card", "B"}},
	}
	isolate(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runCLI(t, tt.args...); code != exitUsage {
				t.Errorf("run(%v) = %d, want %d", tt.args, code, exitUsage)
			}
		})
	}
}

func TestCreateListAndMove(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "board.json")

	mustRun(t, "-file", file, "-add-board", "Work", "-prefix", "wk")
	mustRun(t, "-file", file, "-add-column", "Todo")
	mustRun(t, "-file", file, "-add-column", "Done", "-board", "work")
	mustRun(t, "-file", file, "-add-card", "Write tests", "-column", "todo", "-priority", "high")

	out := mustRun(t, "-file", file, "-list")
	for _, want := range []string{"Work", "Todo (1)", "Done (0)", "WK-1 Write tests"} {
		if !strings.Contains(out, want) {
			t.Errorf("-list output missing %q:\n%s", want, out)
		}
	}

	snap := loadSnapshot(t, file)
	if len(snap.Cards) != 1 || snap.Cards[0].Priority != model.PriorityHigh {
		t.Fatalf("cards = %+v", snap.Cards)
	}
	mustRun(t, "-file", file, "-move", snap.Cards[0].ID, "-column", "Done")
	out = mustRun(t, "-file", file, "-list")
	if !strings.Contains(out, "Done (1)") {
		t.Errorf("card not moved:\n%s", out)
	}
}

func TestMutationErrorsExitUsage(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "board.json")
	mustRun(t, "-file", file, "-add-board", "Work")

	tests := []struct {
		name string
		args []string
	}{
		{"missing column flag", []string{"-add-card", "x"}},
		{"unknown column", []string{"-add-card", "x", "-column", "nope"}},
		{"unknown card", []string{"-move", "nope", "-column", "x"}},
		{"empty board name", []string{"-add-board", " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"-file", file}, tt.args...)
			code, _, errOut := runCLI(t, args...)
			if code != exitUsage {
				t.Errorf("run(%v) = %d, want %d (stderr %q)", args, code, exitUsage, errOut)
			}
		})
	}
}

func TestEphemeralWritesNothing(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "board.json")
	out := mustRun(t, "-file", file, "-ephemeral", "-add-board", "Scratch", "-list")
	if !strings.Contains(out, "Scratch") {
		t.Errorf("-list output = %q", out)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("ephemeral run created %s", file)
	}
}

func TestLegacyFileUpgradedOnWrite(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "board.json")
	testutil.WriteV1File(t, file, testutil.NewDefault().Snapshot())

	code, out, errOut := runCLI(t, "-file", file, "-list")
	if code != exitOK {
		t.Fatalf("run() = %d: %s", code, errOut)
	}
	if !strings.Contains(errOut, "Upgraded legacy board file") {
		t.Errorf("stderr = %q, want upgrade notice", errOut)
	}
	if !strings.Contains(out, "b0") {
		t.Errorf("-list output = %q", out)
	}
	if _, err := os.Stat(file + ".v1.backup"); err != nil {
		t.Errorf("backup missing: %v", err)
	}
}

func TestMigrateAndOpenSQLite(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "board.json")
	db := filepath.Join(dir, "board.db")
	mustRun(t, "-file", file, "-add-board", "Work")
	mustRun(t, "-file", file, "-add-column", "Todo")
	mustRun(t, "-file", file, "-add-card", "Ship", "-column", "Todo")

	out := mustRun(t, "-file", file, "-migrate-sqlite", db)
	if !strings.Contains(out, "1 boards and 1 cards") {
		t.Errorf("migrate output = %q", out)
	}
	if code, _, _ := runCLI(t, "-file", file, "-migrate-sqlite", db); code == exitOK {
		t.Error("second migration into a populated database should fail")
	}

	mustRun(t, "-file", db, "-add-card", "From sqlite", "-column", "Todo")
	out = mustRun(t, "-file", db, "-list")
	if !strings.Contains(out, "Ship") || !strings.Contains(out, "From sqlite") {
		t.Errorf("sqlite -list output:\n%s", out)
	}
}

func TestAutoMigrateOnFirstSQLiteOpen(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "board.json")
	mustRun(t, "-file", file, "-add-board", "Work")

	code, out, errOut := runCLI(t, "-file", filepath.Join(dir, "board.db"), "-list")
	if code != exitOK {
		t.Fatalf("run() = %d: %s", code, errOut)
	}
	if !strings.Contains(errOut, "Migrated") || !strings.Contains(out, "Work") {
		t.Errorf("stdout %q stderr %q", out, errOut)
	}
}

func TestDiscover(t *testing.T) {
	dir := isolate(t)
	boards := filepath.Join(dir, "boards")
	if err := os.MkdirAll(boards, 0o755); err != nil {
		t.Fatal(err)
	}
	mustRun(t, "-file", filepath.Join(boards, "a.json"), "-add-board", "A")
	if err := os.WriteFile(filepath.Join(boards, "junk.json"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, "-discover", boards)
	if !strings.Contains(out, "a.json") || !strings.Contains(out, "invalid") {
		t.Errorf("-discover output:\n%s", out)
	}
	if !strings.Contains(out, "Newest valid: "+filepath.Join(boards, "a.json")) {
		t.Errorf("-discover did not pick a.json:\n%s", out)
	}
}

func TestRegisterResolvesName(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "team.json")
	cfgPath := filepath.Join(dir, "kanban.yaml")

	mustRun(t, "-config", cfgPath, "-file", file, "-register", "team")
	mustRun(t, "-config", cfgPath, "-file", "team", "-add-board", "Team")
	if snap := loadSnapshot(t, file); len(snap.Boards) != 1 {
		t.Errorf("boards in %s = %d, want 1", file, len(snap.Boards))
	}
	if code, _, _ := runCLI(t, "-register", "x"); code != exitUsage {
		t.Errorf("-register without -file = %d", code)
	}
}

func TestPrintBoardsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printBoards(&buf, model.Empty(), false)
	if !strings.Contains(buf.String(), "No boards") {
		t.Errorf("printBoards() = %q", buf.String())
	}
}

func TestMetricsFlag(t *testing.T) {
	dir := isolate(t)
	_, _, errOut := runCLI(t, "-file", filepath.Join(dir, "b.json"), "-add-board", "M", "-metrics")
	if !strings.Contains(errOut, "saves_dropped") || !strings.Contains(errOut, "save ") {
		t.Errorf("-metrics printed nothing useful: %q", errOut)
	}
}

func loadSnapshot(t *testing.T, path string) model.Snapshot {
	t.Helper()
	doc, err := persistence.DecodeDocument(testutil.ReadFile(t, path))
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return doc.Data
}
