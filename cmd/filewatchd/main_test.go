package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/filewatchd/internal/domain"
	"github.com/eliteGoblin/filewatchd/internal/infra"
)

func executeCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// TestRoot_NoArgumentsPrintsUsage verifies that a missing directory is
// reported on stdout with a failure and nothing is created
func TestRoot_NoArgumentsPrintsUsage(t *testing.T) {
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(orig)

	stdout, _, err := executeCmd(t)

	assert.ErrorIs(t, err, errMissingDirectory)
	assert.Contains(t, stdout, "Not enough arguments")
	assert.Contains(t, stdout, "filewatchd <directory_to_watch>")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no filesystem mutation before daemonizing")
}

func TestRoot_TooManyArguments(t *testing.T) {
	_, _, err := executeCmd(t, "/a", "/b")

	assert.Error(t, err)
}

func TestRoot_MissingDirectoryFailsBeforeDetaching(t *testing.T) {
	stdout, _, err := executeCmd(t, filepath.Join(t.TempDir(), "missing"))

	assert.Error(t, err)
	assert.NotContains(t, stdout, "watching:")
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCmd(t, "version")

	require.NoError(t, err)
	assert.Contains(t, stdout, "filewatchd "+Version)
}

func TestVersion_JSON(t *testing.T) {
	stdout, _, err := executeCmd(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, Version, info["version"])
	assert.Equal(t, Commit, info["commit"])
}

func TestSweep_FreshFilesAreKept(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh.log"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	stdout, _, err := executeCmd(t, "sweep", dir)

	require.NoError(t, err)
	assert.Contains(t, stdout, "No expired files found.")
	assert.Contains(t, stdout, "Scanned: 2  Kept: 1  Skipped (not regular): 1")
	_, err = os.Stat(filepath.Join(dir, "fresh.log"))
	assert.NoError(t, err)
}

func TestSweep_NoArguments(t *testing.T) {
	stdout, _, err := executeCmd(t, "sweep")

	assert.ErrorIs(t, err, errMissingDirectory)
	assert.Contains(t, stdout, "Not enough arguments")
}

func TestPrintSweepResult_DryRun(t *testing.T) {
	var out bytes.Buffer

	printSweepResult(&out, domain.SweepResult{
		Target:         "/watch",
		Deleted:        []string{"/watch/old.log"},
		BytesReclaimed: 2048,
		DryRun:         true,
		Scanned:        1,
	})

	assert.Contains(t, out.String(), "old.log")
	assert.Contains(t, out.String(), "would delete")
	assert.Contains(t, out.String(), "Total: 1 files would delete (2.0 kB)")
}

// mockProcessManager implements domain.ProcessManager for testing
type mockProcessManager struct {
	running    map[int]bool
	terminated []int
	killed     []int
}

func (m *mockProcessManager) IsRunning(pid int) bool { return m.running[pid] }
func (m *mockProcessManager) Terminate(pid int) error {
	m.terminated = append(m.terminated, pid)
	return nil
}
func (m *mockProcessManager) Kill(pid int) error {
	m.killed = append(m.killed, pid)
	return nil
}

// mockDaemonRegistry implements domain.DaemonRegistry for testing
type mockDaemonRegistry struct {
	record *domain.DaemonRecord
}

func (m *mockDaemonRegistry) Register(record domain.DaemonRecord) error { return nil }
func (m *mockDaemonRegistry) Unregister(target domain.WatchTarget) error { return nil }
func (m *mockDaemonRegistry) Lookup(target domain.WatchTarget) (*domain.DaemonRecord, error) {
	return m.record, nil
}
func (m *mockDaemonRegistry) IsAlive(target domain.WatchTarget) (bool, error) {
	return m.record != nil, nil
}

func TestPrintStatus_NotRunning(t *testing.T) {
	var out bytes.Buffer

	err := printStatus(&out, "/watch", &mockDaemonRegistry{})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Status: NOT RUNNING")
}

// writeOrphanRecord publishes a record for pid without holding the lock,
// as left by a daemon that was killed.
func writeOrphanRecord(t *testing.T, registry *infra.FileRegistry, target domain.WatchTarget, pid int) {
	t.Helper()
	data, err := json.Marshal(domain.DaemonRecord{PID: pid, WatchDir: target.String()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(registry.RecordPath(target), data, 0644))
	require.NoError(t, os.WriteFile(registry.LockPath(target), nil, 0600))
}

func startBystander(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestPrintStatus_OrphanRecordWithReusedPID(t *testing.T) {
	bystander := startBystander(t)
	target := domain.WatchTarget("/watch")
	registry := infra.NewFileRegistryWithDir(t.TempDir())
	writeOrphanRecord(t, registry, target, bystander.Process.Pid)

	var out bytes.Buffer
	require.NoError(t, printStatus(&out, target, registry))

	assert.Contains(t, out.String(), "Status: NOT RUNNING")
	assert.NotContains(t, out.String(), "PID:")
}

func TestStopDaemon_OrphanRecordLeavesProcessAlone(t *testing.T) {
	bystander := startBystander(t)
	target := domain.WatchTarget("/watch")
	registry := infra.NewFileRegistryWithDir(t.TempDir())
	writeOrphanRecord(t, registry, target, bystander.Process.Pid)
	pm := infra.NewProcessManager()

	var out bytes.Buffer
	require.NoError(t, stopDaemon(&out, target, registry, pm, false))

	assert.Contains(t, out.String(), "not running")
	assert.True(t, pm.IsRunning(bystander.Process.Pid), "unrelated process must not be signaled")
}

func TestPrintStatus_Running(t *testing.T) {
	var out bytes.Buffer
	registry := &mockDaemonRegistry{record: &domain.DaemonRecord{
		PID:        99,
		WatchDir:   "/watch",
		StartedAt:  time.Now().Add(-2 * time.Hour),
		AppVersion: "0.1.0",
		Mode:       "user",
	}}

	require.NoError(t, printStatus(&out, "/watch", registry))

	assert.Contains(t, out.String(), "Status: RUNNING")
	assert.Contains(t, out.String(), "PID: 99")
	assert.Contains(t, out.String(), "2 hours ago")
	assert.Contains(t, out.String(), "Log channel: filewatchd:/watch")
}

func TestStopDaemon(t *testing.T) {
	record := &domain.DaemonRecord{PID: 77, WatchDir: "/watch"}

	t.Run("terminates by default", func(t *testing.T) {
		var out bytes.Buffer
		pm := &mockProcessManager{running: map[int]bool{77: true}}

		require.NoError(t, stopDaemon(&out, "/watch", &mockDaemonRegistry{record: record}, pm, false))

		assert.Equal(t, []int{77}, pm.terminated)
		assert.Empty(t, pm.killed)
	})

	t.Run("kills with force", func(t *testing.T) {
		var out bytes.Buffer
		pm := &mockProcessManager{running: map[int]bool{77: true}}

		require.NoError(t, stopDaemon(&out, "/watch", &mockDaemonRegistry{record: record}, pm, true))

		assert.Equal(t, []int{77}, pm.killed)
	})

	t.Run("nothing to stop", func(t *testing.T) {
		var out bytes.Buffer
		pm := &mockProcessManager{running: map[int]bool{77: true}}

		require.NoError(t, stopDaemon(&out, "/watch", &mockDaemonRegistry{}, pm, false))

		assert.Empty(t, pm.terminated)
		assert.Contains(t, out.String(), "not running")
	})
}
