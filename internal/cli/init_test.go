package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/approvedrevs/internal/listing"
)

// resetFlags clears flag variables left over from earlier runs.
func resetFlags() {
	cfgFile, asUser, policyPath, dbPath = "", "", "", ""
	approveRev, statusJSON = 0, false
	pageText, pageTextFile, pageViewJSON = "", "", false
	fileVersion, fileStatusJSON = "", false
	tailLines = 10
	historyTitle, historyActor, historySince, historyJSON = "", "", 0, false
	initAdmin, initForce, initPolicyForce, initPolicyStdout = "", false, false, false
	userGroups = nil
	listMode, listJSON = string(listing.ModeApproved), false
	mcpNoWatch = false
	diffFormat, diffExitCode, versionJSON = "text", false, false
	simTrace, simFormat = "", "text"
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "approvedrevs %v", args)
	return out
}

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	mustRun(t, "init", "--admin", "Root")
	return home
}

func TestRunInit(t *testing.T) {
	home := setupHome(t)
	dir := filepath.Join(home, ".approvedrevs")

	for _, name := range []string{"config.yaml", "policy.yaml", "approvedrevs.db", "audit.jsonl"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	data, err := os.ReadFile(filepath.Join(dir, "policy.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "namespace_permissions")

	out := mustRun(t, "user", "list")
	assert.Contains(t, out, "Root: sysop")
}

func TestRunInitIdempotent(t *testing.T) {
	setupHome(t)
	out := mustRun(t, "init")
	assert.Contains(t, out, "All files already exist")
}

func TestInitPolicyRefusesOverwrite(t *testing.T) {
	setupHome(t)
	_, err := run(t, "init-policy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	out := mustRun(t, "init-policy", "--force")
	assert.Contains(t, out, "policy.yaml")

	out = mustRun(t, "init-policy", "--stdout")
	assert.Contains(t, out, "namespace_permissions")
}

func TestApproveFlow(t *testing.T) {
	setupHome(t)
	mustRun(t, "user", "add", "Bob", "--group", "editors")

	out := mustRun(t, "page", "save", "Main_Page", "--as", "Bob", "--text", "hello")
	assert.Contains(t, out, "Saved Main Page")
	assert.NotContains(t, out, "approved automatically")

	out = mustRun(t, "can-approve", "Main_Page", "--as", "Bob")
	assert.Contains(t, out, "Bob may not approve Main Page")

	_, err := run(t, "approve", "Main_Page", "--as", "Bob")
	require.Error(t, err)

	out = mustRun(t, "approve", "Main_Page", "--as", "Root")
	assert.Contains(t, out, "Approved Main Page at revision")

	mustRun(t, "page", "save", "Main_Page", "--as", "Bob", "--text", "vandalism")

	out = mustRun(t, "page", "view", "Main_Page")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "newer revisions exist")
	assert.NotContains(t, out, "vandalism")

	out = mustRun(t, "status", "Main_Page", "--json", "--as", "Root")
	var st pageStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Approvable)
	assert.True(t, st.Approved)
	assert.True(t, st.CanApprove)
	assert.Less(t, st.ApprovedRev, st.LatestRev)

	out = mustRun(t, "list", "pages", "--mode", "notlatest")
	assert.Contains(t, out, "Main Page")
}

func TestAutomaticApprovalForSysop(t *testing.T) {
	setupHome(t)
	out := mustRun(t, "page", "save", "Help:Intro", "--as", "Root", "--text", "welcome")
	assert.Contains(t, out, "Revision approved automatically")
}

func TestUnapprove(t *testing.T) {
	setupHome(t)
	mustRun(t, "page", "save", "Main_Page", "--as", "Root", "--text", "hello")
	out := mustRun(t, "unapprove", "Main_Page", "--as", "Root")
	assert.Contains(t, out, "Unapproved Main Page")

	out = mustRun(t, "list", "pages", "--mode", "unapproved", "--as", "Root")
	assert.Contains(t, out, "Main Page")
}

func TestAuditCommands(t *testing.T) {
	home := setupHome(t)
	mustRun(t, "page", "save", "Main_Page", "--as", "Root", "--text", "hello")

	out := mustRun(t, "audit", "verify")
	assert.Contains(t, out, "OK: 1 entries verified")

	out = mustRun(t, "audit", "log", "--title", "Main_Page")
	assert.Contains(t, out, "approve")
	assert.Contains(t, out, "Root")

	out = mustRun(t, "audit", "tail", "-n", "1", filepath.Join(home, ".approvedrevs", "audit.jsonl"))
	assert.Contains(t, out, `"action": "approve"`)
}

func TestAuditVerifyDetectsTampering(t *testing.T) {
	home := setupHome(t)
	mustRun(t, "page", "save", "Main_Page", "--as", "Root", "--text", "hello")
	mustRun(t, "unapprove", "Main_Page", "--as", "Root")

	path := filepath.Join(home, ".approvedrevs", "audit.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte(`"actor":"Root"`), []byte(`"actor":"Mallory"`), 1)
	require.NotEqual(t, data, tampered)
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	_, err = run(t, "audit", "verify")
	assert.Error(t, err)
}

func TestFileCommands(t *testing.T) {
	setupHome(t)
	src := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(src, []byte("png bytes"), 0o600))

	out := mustRun(t, "file", "upload", "Logo.png", src, "--as", "Root")
	assert.Contains(t, out, "Uploaded File:Logo.png")

	out = mustRun(t, "file", "status", "Logo.png")
	assert.Contains(t, out, "Approvable: no")

	_, err := run(t, "file", "approve", "Logo.png", "--as", "Root")
	assert.Error(t, err)
}

func TestListRejectsUnknownMode(t *testing.T) {
	setupHome(t)
	_, err := run(t, "list", "pages", "--mode", "sideways")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out := mustRun(t, "version")
	assert.Contains(t, out, "approvedrevs "+version)

	out = mustRun(t, "version", "--json")
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version, info.Version)
}

func TestDoctor(t *testing.T) {
	setupHome(t)
	out := mustRun(t, "doctor")
	assert.Contains(t, out, "All checks passed.")
	assert.Contains(t, out, "5 namespaces")
	assert.Contains(t, out, "1 users")
}

func TestDoctorBeforeInit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := run(t, "doctor")
	assert.Error(t, err)
	assert.Contains(t, out, "approvedrevs init")
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.yaml")
	newPath := filepath.Join(dir, "new.yaml")
	require.NoError(t, os.WriteFile(oldPath, []byte("all_pages: {group: sysop}\nnamespace_permissions: {Main: {}}\n"), 0o600))
	require.NoError(t, os.WriteFile(newPath, []byte("all_pages: {group: sysop}\nnamespace_permissions: {Main: {}, Help: {}}\n"), 0o600))

	out := mustRun(t, "diff", oldPath, newPath)
	assert.Contains(t, out, "+ Help")
	assert.Contains(t, out, "1 added")

	_, err := run(t, "diff", "--exit-code", oldPath, newPath)
	assert.ErrorIs(t, err, errPoliciesDiffer)
	mustRun(t, "diff", "--exit-code", oldPath, oldPath)
}

func TestSimulate(t *testing.T) {
	setupHome(t)
	mustRun(t, "page", "save", "Main_Page", "--as", "Root", "--text", "hello")

	candidate := filepath.Join(t.TempDir(), "candidate.yaml")
	require.NoError(t, os.WriteFile(candidate, []byte("all_pages: {group: bureaucrat}\nnamespace_permissions: {Main: {}}\n"), 0o600))

	out := mustRun(t, "simulate", candidate)
	assert.Contains(t, out, "1 of 1 actions changed.")
	assert.Contains(t, out, "allow → deny")
}
