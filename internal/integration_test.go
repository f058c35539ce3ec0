// Package internal contains integration tests that drive a consensus run
// end to end: configuration loaded from a project directory, agents running
// as real processes, and the run observed through the event bus.
package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/consensus/internal/config"
	"github.com/Iron-Ham/consensus/internal/consensus"
	"github.com/Iron-Ham/consensus/internal/event"
	"github.com/Iron-Ham/consensus/internal/metrics"
	"github.com/Iron-Ham/consensus/internal/testutil"
)

const addContent = "func Add(a, b int) int {\n\treturn a + b\n}\n\nfunc Sub(a, b int) int {\n\treturn a - b\n}\n"

// writeProject writes a consensus.local.md declaring the given agents and
// returns the directory holding it.
func writeProject(t *testing.T, agents map[string]string, extra string) string {
	t.Helper()

	order := make([]string, 0, len(agents))
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if _, ok := agents[name]; ok {
			order = append(order, name)
		}
	}

	var b strings.Builder
	b.WriteString("---\nmodels:\n")
	for _, name := range order {
		b.WriteString("  - " + name + "\n")
	}
	b.WriteString("cli_timeout: 20\nagents:\n")
	for _, name := range order {
		b.WriteString("  " + name + ":\n    command: " + agents[name] + "\n")
	}
	b.WriteString(extra)
	b.WriteString("---\n\nProject notes.\n")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.LocalFileName), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("failed to write local settings: %v", err)
	}
	return dir
}

type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) record(e event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, e.EventType())
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func newEngine(t *testing.T, cfg *config.Config, extra ...consensus.Option) *consensus.Engine {
	t.Helper()

	opts, err := cfg.EngineOptions(nil)
	if err != nil {
		t.Fatalf("EngineOptions() error = %v", err)
	}
	return consensus.NewEngine(append(opts, extra...)...)
}

func TestConsensusRun_DebateConverges(t *testing.T) {
	testutil.SkipIfNoShell(t)

	alpha := testutil.EchoAgent(t, "VERDICT: APPROVE\nBoth functions are correct.")
	beta := testutil.FakeAgent(t, `case "$*" in
*"Other reviewers"*) echo "VERDICT: APPROVE after reading alpha, overflow is the caller's concern." ;;
*) echo "VERDICT: CONCERNS integer overflow is not handled." ;;
esac
`)
	dir := writeProject(t, map[string]string{"alpha": alpha, "beta": beta}, "debate_rounds: 2\n")

	cfg, err := config.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	ok, err := cfg.ShouldReview("calc/add.go", addContent)
	if err != nil || !ok {
		t.Fatalf("ShouldReview() = %v, %v; want true", ok, err)
	}

	bus := event.NewBus(nil)
	var log eventLog
	bus.SubscribeAll(log.record)
	reg := prometheus.NewRegistry()

	engine := newEngine(t, cfg, consensus.WithBus(bus), consensus.WithMetrics(metrics.MustNew(reg)))
	rc := cfg.RunConfig()
	res, err := engine.Run(context.Background(), consensus.ModeCode, addContent, "calc/add.go", &rc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Status != consensus.FullConsensus {
		t.Errorf("Status = %s, want %s\nsummary: %s", res.Status, consensus.FullConsensus, res.Summary)
	}
	if res.Round != 1 {
		t.Errorf("Round = %d, want 1", res.Round)
	}
	if res.Recommendation != consensus.RecommendProceed {
		t.Errorf("Recommendation = %q", res.Recommendation)
	}
	beta1, found := res.Response("beta")
	if !found || !strings.Contains(beta1.Text, "after reading alpha") {
		t.Errorf("beta final response = %+v, want revised answer", beta1)
	}

	if n := log.count(event.TypeAgentInvoked); n != 4 {
		t.Errorf("agent_invoked events = %d, want 4", n)
	}
	if n := log.count(event.TypeRoundCompleted); n != 2 {
		t.Errorf("round_completed events = %d, want 2", n)
	}
	if log.count(event.TypeRunStarted) != 1 || log.count(event.TypeRunTerminated) != 1 {
		t.Errorf("lifecycle events = %v", log.types)
	}
	if n, err := promtest.GatherAndCount(reg, "consensus_runs_total"); err != nil || n != 1 {
		t.Errorf("run series = %d (err %v), want 1", n, err)
	}
}

func TestConsensusRun_PersistentDisagreement(t *testing.T) {
	testutil.SkipIfNoShell(t)

	alpha := testutil.EchoAgent(t, "VERDICT: APPROVE")
	beta := testutil.EchoAgent(t, "VERDICT: CONCERNS the subtraction can underflow.")
	dir := writeProject(t, map[string]string{"alpha": alpha, "beta": beta}, "debate_rounds: 1\n")

	cfg, err := config.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	rc := cfg.RunConfig()
	res, err := newEngine(t, cfg).Run(context.Background(), consensus.ModeCode, addContent, "calc/add.go", &rc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Status != consensus.MajorityAgree {
		t.Errorf("Status = %s, want %s", res.Status, consensus.MajorityAgree)
	}
	if res.Round != 1 {
		t.Errorf("Round = %d, want the exhausted budget 1", res.Round)
	}
	if !strings.Contains(res.Recommendation, "beta") {
		t.Errorf("Recommendation = %q, want it to name beta", res.Recommendation)
	}
}

func TestConsensusRun_AllAgentsMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-agent")
	dir := writeProject(t, map[string]string{"alpha": missing, "beta": missing + "-2"}, "")

	cfg, err := config.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	rc := cfg.RunConfig()
	res, err := newEngine(t, cfg).Run(context.Background(), consensus.ModeDesign, "Use a queue.", "plan.md", &rc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Status != consensus.Skipped {
		t.Fatalf("Status = %s, want %s", res.Status, consensus.Skipped)
	}
	if res.Recommendation != consensus.RecommendSkipped {
		t.Errorf("Recommendation = %q", res.Recommendation)
	}
	for _, name := range []string{"alpha", "beta"} {
		if !strings.Contains(res.Summary, name+" (") {
			t.Errorf("Summary should name errored agent %s: %q", name, res.Summary)
		}
	}
}

func TestConsensusRun_GateSkipsSmallAndIgnoredChanges(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		path    string
		content string
	}{
		{"README.md", addContent},
		{"vendor/node_modules/pkg/index.js", addContent},
		{"calc/add.go", "x := 1\n"},
	}
	for _, tt := range tests {
		ok, err := cfg.ShouldReview(tt.path, tt.content)
		if err != nil {
			t.Fatalf("ShouldReview(%q) error = %v", tt.path, err)
		}
		if ok {
			t.Errorf("ShouldReview(%q) = true, want the gate to skip it", tt.path)
		}
	}
}
