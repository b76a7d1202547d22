package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/policysync/internal/gittest"
	"mercator-hq/policysync/pkg/cli"
	"mercator-hq/policysync/pkg/policy/bundle"
)

// executeCommand runs the root command with args and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	bundleFlags.repository = ""
	outputFormat = "text"
	verbose = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func newPolicyRepo(t *testing.T) *gittest.Repo {
	t.Helper()
	repo := gittest.New(t)
	repo.WriteFiles(map[string]string{
		".manifest":      "lib.rego\nworld.rego\n",
		"lib.rego":       "package lib",
		"world.rego":     "package world\n\nimport data.lib",
		"more/path.rego": "package more.path",
	}).Commit("initial commit")
	return repo
}

func decodeBundle(t *testing.T, out string) bundle.PolicyBundle {
	t.Helper()
	var b bundle.PolicyBundle
	if err := json.Unmarshal([]byte(out), &b); err != nil {
		t.Fatalf("failed to decode bundle output %q: %v", out, err)
	}
	return b
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "Policysync "+Version) {
		t.Errorf("version output = %q", out)
	}
	for _, want := range []string{"Git Commit:", "Build Date:", "Go Version:", "OS/Arch:"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q", want)
		}
	}
}

func TestBundleCommand(t *testing.T) {
	repo := newPolicyRepo(t)

	out, err := executeCommand(t, "bundle", "--repository", repo.Dir, "--output", "json")
	if err != nil {
		t.Fatalf("bundle error = %v", err)
	}

	b := decodeBundle(t, out)
	want := []string{"lib.rego", "world.rego", "more/path.rego"}
	if diff := cmp.Diff(want, b.Manifest); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
	if len(b.PolicyModules) != 3 {
		t.Errorf("policy modules = %d, want 3", len(b.PolicyModules))
	}
	if b.OldHash != "" {
		t.Errorf("complete bundle has old hash %q", b.OldHash)
	}
}

func TestBundleCommand_Text(t *testing.T) {
	repo := newPolicyRepo(t)

	out, err := executeCommand(t, "bundle", "-r", repo.Dir)
	if err != nil {
		t.Fatalf("bundle error = %v", err)
	}
	for _, want := range []string{"manifest:\n  lib.rego\n  world.rego\n  more/path.rego\n", "policy modules: 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestDiffCommand(t *testing.T) {
	repo := newPolicyRepo(t)
	first, err := repo.Git.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	second := repo.Write("more/path.rego", "package more.path\n\nallow := true").
		Remove("lib.rego").
		Commit("second commit")

	out, err := executeCommand(t, "diff", first.Hash().String(), second.Hash.String(), "-r", repo.Dir, "-o", "json")
	if err != nil {
		t.Fatalf("diff error = %v", err)
	}

	b := decodeBundle(t, out)
	if b.OldHash != first.Hash().String() || b.Hash != second.Hash.String() {
		t.Errorf("hashes = %s..%s, want %s..%s", b.OldHash, b.Hash, first.Hash(), second.Hash)
	}
	if b.DeletedFiles == nil {
		t.Fatal("diff bundle has no deleted files")
	}
	if diff := cmp.Diff([]string{"lib.rego"}, b.DeletedFiles.PolicyModules); diff != "" {
		t.Errorf("deleted policy modules mismatch (-want +got):\n%s", diff)
	}
	if len(b.PolicyModules) != 1 || b.PolicyModules[0].Path != "more/path.rego" {
		t.Errorf("policy modules = %+v, want only more/path.rego", b.PolicyModules)
	}
}

func TestDiffCommand_SameCommitResyncs(t *testing.T) {
	repo := newPolicyRepo(t)

	out, err := executeCommand(t, "diff", "HEAD", "HEAD", "-r", repo.Dir, "-o", "json")
	if err != nil {
		t.Fatalf("diff error = %v", err)
	}

	b := decodeBundle(t, out)
	if b.OldHash != b.Hash {
		t.Errorf("resync bundle hashes = %s..%s, want equal", b.OldHash, b.Hash)
	}
	if len(b.Manifest) == 0 {
		t.Error("resync bundle has an empty manifest")
	}
}

func TestBundleCommand_MissingRepository(t *testing.T) {
	_, err := executeCommand(t, "bundle")
	if err == nil {
		t.Fatal("expected error without a repository")
	}
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d", code, cli.ExitConfig)
	}
}

func TestBundleCommand_BadOutput(t *testing.T) {
	repo := newPolicyRepo(t)

	_, err := executeCommand(t, "bundle", "-r", repo.Dir, "-o", "xml")
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("ExitCode(%v) = %d, want %d", err, code, cli.ExitConfig)
	}
}
