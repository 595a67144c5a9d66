package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 callback invocation, got %d", n)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var called atomic.Bool
	d.Trigger(func() { called.Store(true) })
	d.Cancel()
	time.Sleep(100 * time.Millisecond)

	if called.Load() {
		t.Error("callback should not run after cancel")
	}
}

func TestDebouncer_DefaultDuration(t *testing.T) {
	if d := NewDebouncer(0); d.Duration() != DefaultDebounceDuration {
		t.Errorf("expected default duration %v, got %v", DefaultDebounceDuration, d.Duration())
	}
}

func TestWindow_CoalescesBursts(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(time.Second)

	if w.Due(base) {
		t.Fatal("idle window is never due")
	}

	w.Schedule(base)
	w.Schedule(base.Add(400 * time.Millisecond))
	w.Schedule(base.Add(800 * time.Millisecond))

	deadline, ok := w.Deadline()
	if !ok || !deadline.Equal(base.Add(1800*time.Millisecond)) {
		t.Fatalf("expected deadline moved by the last schedule, got %v ok=%v", deadline, ok)
	}
	if w.Due(base.Add(1500 * time.Millisecond)) {
		t.Error("not due before the window elapsed")
	}
	if !w.Due(base.Add(1800 * time.Millisecond)) {
		t.Error("expected due at the deadline")
	}
	if w.Due(base.Add(5 * time.Second)) {
		t.Error("a burst is due exactly once")
	}
}

func TestWindow_Cancel(t *testing.T) {
	base := time.Now()
	w := NewWindow(time.Second)
	w.Schedule(base)
	w.Cancel()
	if w.Pending() || w.Due(base.Add(time.Hour)) {
		t.Error("cancelled window must stay idle")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, d time.Duration) bool {
	t.Helper()
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	for _, poll := range []bool{false, true} {
		name := "fsnotify"
		if poll {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, path, "initial")

			var changes atomic.Int32
			w, err := New(path,
				WithForcePoll(poll),
				WithDebounceDuration(20*time.Millisecond),
				WithPollInterval(25*time.Millisecond),
				WithOnChange(func() { changes.Add(1) }),
			)
			if err != nil {
				t.Fatal(err)
			}
			if err := w.Start(); err != nil {
				t.Fatal(err)
			}
			defer w.Stop()

			time.Sleep(60 * time.Millisecond)
			writeFile(t, path, "modified content")

			if !waitFor(t, w.Changed(), 2*time.Second) {
				t.Fatal("expected a change notification")
			}
			if changes.Load() == 0 {
				t.Error("expected the change callback to run")
			}
		})
	}
}

func TestWatcher_EnvForcesPolling(t *testing.T) {
	t.Setenv(ForcePollEnv, "yes")
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "x")

	w, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.IsPolling() {
		t.Fatalf("expected polling when %s is set", ForcePollEnv)
	}
}

func TestWatcher_RemoteFilesystemUsesPolling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "x")

	orig := detectFilesystemTypeFunc
	detectFilesystemTypeFunc = func(string) FilesystemType { return FSTypeNFS }
	t.Cleanup(func() { detectFilesystemTypeFunc = orig })

	w, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if !w.IsPolling() || w.FilesystemType() != FSTypeNFS {
		t.Errorf("expected polling on nfs, got polling=%v fs=%v", w.IsPolling(), w.FilesystemType())
	}
}

func TestWatcher_FileRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "x")

	removed := make(chan struct{}, 1)
	w, err := New(path,
		WithForcePoll(true),
		WithPollInterval(20*time.Millisecond),
		WithOnError(func(err error) {
			if err == ErrFileRemoved {
				select {
				case removed <- struct{}{}:
				default:
				}
			}
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, removed, 2*time.Second) {
		t.Error("expected ErrFileRemoved")
	}
}

func TestWatcher_StartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	w, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if w.Path() != path {
		t.Errorf("expected absolute path %s, got %s", path, w.Path())
	}
	if err := w.Start(); err != nil {
		t.Fatalf("a file that does not exist yet can be watched: %v", err)
	}
	if err := w.Start(); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	w.Stop()
	if w.IsStarted() {
		t.Error("expected stopped")
	}
	w.Stop()
	if err := w.Start(); err != nil {
		t.Errorf("restart failed: %v", err)
	}
	w.Stop()
}

func TestFilesystemType_String(t *testing.T) {
	tests := []struct {
		fsType   FilesystemType
		expected string
	}{
		{FSTypeUnknown, "unknown"},
		{FSTypeLocal, "local"},
		{FSTypeNFS, "nfs"},
		{FSTypeSMB, "smb"},
		{FSTypeSSHFS, "sshfs"},
		{FSTypeFUSE, "fuse"},
		{FilesystemType(99), "unknown"},
		{FilesystemType(-1), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.fsType.String(); got != tc.expected {
			t.Errorf("FilesystemType(%d).String() = %q, expected %q", tc.fsType, got, tc.expected)
		}
	}
}

func TestDetectFilesystemType(t *testing.T) {
	if got := DetectFilesystemType(""); got != FSTypeUnknown {
		t.Errorf("empty path: got %v", got)
	}
	// falls back to the closest existing parent
	_ = DetectFilesystemType(filepath.Join(t.TempDir(), "a", "b", "c.yaml"))
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{" yes ", true},
		{"y", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"", false},
		{"invalid", false},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("ISCOPE_TEST_ENV_BOOL", tc.value)
			if got := envBool("ISCOPE_TEST_ENV_BOOL"); got != tc.expected {
				t.Errorf("envBool(%q) = %v, expected %v", tc.value, got, tc.expected)
			}
		})
	}
}
