package main

import (
	"os"
	"path/filepath"
	"testing"
)

const testConfig = `
workspaces:
  - id: ws-a
    name: Trattoria
    active: true
memberships:
  - principal_id: olivia
    workspace_id: ws-a
    role_id: operator
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wsauthz.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunExitCodes(t *testing.T) {
	t.Setenv("WSAUTHZ_LOGGER", "none")
	t.Setenv("WSAUTHZ_BACKEND", "memory")
	cfg := writeConfig(t)

	cases := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, 1},
		{"unknown command", []string{"frobnicate"}, 1},
		{"missing args", []string{"check", cfg}, 1},
		{"validate", []string{"validate", cfg}, 0},
		{"allow", []string{"check", cfg, "olivia", "ws-a", "order.update"}, 0},
		{"deny", []string{"check", cfg, "olivia", "ws-a", "user.manage"}, 2},
		{"missing file", []string{"validate", filepath.Join(t.TempDir(), "nope.yaml")}, 1},
	}
	for _, tc := range cases {
		if got := run(tc.args); got != tc.want {
			t.Errorf("%s: run(%v) = %d, want %d", tc.name, tc.args, got, tc.want)
		}
	}
}

func TestRunUnknownBackend(t *testing.T) {
	t.Setenv("WSAUTHZ_LOGGER", "none")
	t.Setenv("WSAUTHZ_BACKEND", "etcd")
	if got := run([]string{"apply", writeConfig(t)}); got != 1 {
		t.Fatalf("expected exit 1 for unknown backend, got %d", got)
	}
}

func TestRunSQLiteBackendAcrossInvocations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wsauthz.db")
	t.Setenv("WSAUTHZ_LOGGER", "none")
	t.Setenv("WSAUTHZ_BACKEND", "sqlite")
	t.Setenv("WSAUTHZ_SQLITE_PATH", dbPath)
	cfg := writeConfig(t)

	if got := run([]string{"apply", cfg}); got != 0 {
		t.Fatalf("apply: exit %d", got)
	}
	// the deny path returns through the same cleanup as the allow path
	if got := run([]string{"check", cfg, "olivia", "ws-a", "user.manage"}); got != 2 {
		t.Fatalf("deny: exit %d", got)
	}
	if got := run([]string{"check", cfg, "olivia", "ws-a", "order.update"}); got != 0 {
		t.Fatalf("allow after reopen: exit %d", got)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("sqlite file should exist: %v", err)
	}
}
