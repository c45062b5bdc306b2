//go:build integration

package integration

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filterlaunch/internal/launcher"
	"filterlaunch/internal/sync"
	"filterlaunch/internal/testutil"
)

const (
	strictSource = "github:acme/strict"
	looseSource  = "github:acme/loose"
)

func TestSyncAndLaunch(t *testing.T) {
	env := NewEnv(t)

	// Scenarios share one environment and run in order; later scenarios
	// build on the installed state of earlier ones, like repeated game
	// launches on one machine.
	t.Run("A_InitialSync", func(t *testing.T) {
		testInitialSync(t, env)
	})

	t.Run("B_SecondRunIsCached", func(t *testing.T) {
		testSecondRunIsCached(t, env)
	})

	t.Run("C_NewReleaseIsPickedUp", func(t *testing.T) {
		testNewReleaseIsPickedUp(t, env)
	})

	t.Run("D_BranchSource", func(t *testing.T) {
		testBranchSource(t, env)
	})

	t.Run("E_MergedDestination", func(t *testing.T) {
		testMergedDestination(t, env)
	})

	t.Run("F_FailedSourceKeepsStaleContent", func(t *testing.T) {
		testFailedSourceKeepsStaleContent(t, env)
	})

	t.Run("G_HardFailuresStillLaunch", func(t *testing.T) {
		testHardFailuresStillLaunch(t, env)
	})
}

func testInitialSync(t *testing.T, env *Env) {
	t.Helper()
	env.Harness.SetRelease("acme/strict", "v1.0.0", "first public release", map[string]string{
		"Strict.filter": "Show # strict v1\n",
	})

	result := env.Sync(t, strictSource)
	if kind := result.Outcomes[0].Kind; kind != sync.OutcomeFresh {
		t.Fatalf("outcome = %s, want fresh (err: %v)", kind, result.Outcomes[0].Err)
	}

	if got := readFilter(t, env, "Strict.filter"); got != "Show # strict v1\n" {
		t.Errorf("installed content = %q", got)
	}
	if !strings.Contains(env.Notes.String(), "first public release") {
		t.Errorf("release notes not emitted: %q", env.Notes.String())
	}
}

func testSecondRunIsCached(t *testing.T, env *Env) {
	t.Helper()
	before := env.Harness.ZipballFetches()

	result := env.Sync(t, strictSource)
	if kind := result.Outcomes[0].Kind; kind != sync.OutcomeCached {
		t.Fatalf("outcome = %s, want cached", kind)
	}
	if after := env.Harness.ZipballFetches(); after != before {
		t.Errorf("archive fetched on cached run: %d -> %d", before, after)
	}
}

func testNewReleaseIsPickedUp(t *testing.T, env *Env) {
	t.Helper()
	env.Harness.SetRelease("acme/strict", "v1.1.0", "bugfix release", map[string]string{
		"Strict.filter": "Show # strict v1.1\n",
	})

	result := env.Sync(t, strictSource)
	if kind := result.Outcomes[0].Kind; kind != sync.OutcomeFresh {
		t.Fatalf("outcome = %s, want fresh (err: %v)", kind, result.Outcomes[0].Err)
	}
	if got := readFilter(t, env, "Strict.filter"); got != "Show # strict v1.1\n" {
		t.Errorf("installed content = %q", got)
	}
}

func testBranchSource(t *testing.T, env *Env) {
	t.Helper()
	env.Harness.SetBranch("acme/strict", "dev", "deadbeef", "wip: tweak tiers", map[string]string{
		"StrictDev.filter": "Show # dev tip\n",
	})

	result := env.Sync(t, strictSource+"/dev")
	o := result.Outcomes[0]
	if o.Kind != sync.OutcomeFresh {
		t.Fatalf("outcome = %s, want fresh (err: %v)", o.Kind, o.Err)
	}
	if o.Version != "deadbeef" {
		t.Errorf("version = %q, want the tip commit hash", o.Version)
	}
	if got := readFilter(t, env, "StrictDev.filter"); got != "Show # dev tip\n" {
		t.Errorf("installed content = %q", got)
	}
}

func testMergedDestination(t *testing.T, env *Env) {
	t.Helper()
	env.Harness.SetRelease("acme/strict", "v2.0.0", "", map[string]string{
		"Combined.filter": "Show # strict rules\n",
	})
	env.Harness.SetRelease("acme/loose", "v1.0.0", "", map[string]string{
		"Combined.filter": "Show # loose rules\n",
	})

	result := env.Sync(t, strictSource, looseSource)
	for _, o := range result.Outcomes {
		if o.Err != nil {
			t.Fatalf("source %s failed: %v", o.Source.Key(), o.Err)
		}
	}

	want := "Show # strict rules\nShow # loose rules\n"
	if got := readFilter(t, env, "Combined.filter"); got != want {
		t.Errorf("merged content = %q, want argument-order concatenation", got)
	}
}

func testFailedSourceKeepsStaleContent(t *testing.T, env *Env) {
	t.Helper()
	before := readFilter(t, env, "Combined.filter")

	env.Harness.Fail("acme/strict", http.StatusInternalServerError)
	defer env.Harness.Fail("acme/strict", 0)

	result := env.Sync(t, strictSource)
	if kind := result.Outcomes[0].Kind; kind != sync.OutcomeSoftFailure {
		t.Fatalf("outcome = %s, want soft-failure", kind)
	}
	if after := readFilter(t, env, "Combined.filter"); after != before {
		t.Errorf("stale content was modified by a failed sync")
	}
}

func testHardFailuresStillLaunch(t *testing.T, env *Env) {
	t.Helper()

	// Every requested source hard-fails: the repository has never been
	// installed and its API is down. The launch must still happen and the
	// wrapped command's exit code must come through unchanged.
	env.Harness.Fail("acme/missing", http.StatusInternalServerError)
	defer env.Harness.Fail("acme/missing", 0)

	result := env.Sync(t, "github:acme/missing")
	if kind := result.Outcomes[0].Kind; kind != sync.OutcomeHardFailure {
		t.Fatalf("outcome = %s, want hard-failure", kind)
	}

	l := launcher.NewExecLauncher(testutil.Logger())
	code, err := l.Launch("sh", []string{"-c", "exit 3"})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func readFilter(t *testing.T, env *Env, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(env.FilterDir, name))
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return string(data)
}
