package verdict

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/consensus/internal/logging"
)

func TestLuaExtractor(t *testing.T) {
	tests := []struct {
		name   string
		script string
		text   string
		want   Verdict
	}{
		{
			name:   "script decides approve",
			script: `function verdict(text) return "APPROVE" end`,
			text:   "VERDICT: CONCERNS",
			want:   Approve,
		},
		{
			name: "script uses string library",
			script: `function verdict(text)
  if string.find(string.lower(text), "lgtm", 1, true) then return "APPROVE" end
  return "CONCERNS"
end`,
			text: "LGTM, ship it",
			want: Approve,
		},
		{
			name:   "lowercase return is accepted",
			script: `function verdict(text) return "concerns" end`,
			text:   "fine",
			want:   Concerns,
		},
		{
			name: "script can delegate to keyword heuristic",
			script: `function verdict(text)
  if #text == 0 then return "CONCERNS" end
  return keyword_verdict(text)
end`,
			text: "found a bug",
			want: Concerns,
		},
		{
			name:   "invalid return falls back",
			script: `function verdict(text) return "MAYBE" end`,
			text:   "VERDICT: CONCERNS",
			want:   Concerns,
		},
		{
			name:   "non-string return falls back",
			script: `function verdict(text) return 42 end`,
			text:   "all good",
			want:   Approve,
		},
		{
			name:   "runtime error falls back",
			script: `function verdict(text) error("boom") end`,
			text:   "there is an issue",
			want:   Concerns,
		},
		{
			name:   "missing function falls back",
			script: `local x = 1`,
			text:   "VERDICT: APPROVE",
			want:   Approve,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := NewLuaExtractor(tt.name, tt.script)
			if err != nil {
				t.Fatalf("NewLuaExtractor error = %v", err)
			}
			if got := x.Extract(tt.text); got != tt.want {
				t.Errorf("Extract(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestLuaExtractor_SyntaxError(t *testing.T) {
	if _, err := NewLuaExtractor("bad.lua", "function verdict(text"); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestLuaExtractor_Sandbox(t *testing.T) {
	for _, global := range []string{"dofile", "loadfile", "load", "loadstring", "print", "io", "os", "math.random"} {
		t.Run(global, func(t *testing.T) {
			script := `function verdict(text)
  if ` + global + ` == nil then return "APPROVE" end
  return "CONCERNS"
end`
			x, err := NewLuaExtractor(global, script, WithFallback(ExtractorFunc(func(string) Verdict { return Concerns })))
			if err != nil {
				t.Fatalf("NewLuaExtractor error = %v", err)
			}
			if got := x.Extract(""); got != Approve {
				t.Errorf("%s should be unavailable in the sandbox", global)
			}
		})
	}
}

func TestLuaExtractor_Timeout(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerWriter(&buf, logging.LevelDebug)

	x, err := NewLuaExtractor("spin.lua", `function verdict(text) while true do end end`,
		WithScriptTimeout(50*time.Millisecond),
		WithFallback(ExtractorFunc(func(string) Verdict { return Concerns })),
		WithLogger(logger))
	if err != nil {
		t.Fatalf("NewLuaExtractor error = %v", err)
	}

	start := time.Now()
	if got := x.Extract("VERDICT: APPROVE"); got != Concerns {
		t.Errorf("Extract() = %s, want fallback CONCERNS", got)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("script ran for %v, timeout not enforced", elapsed)
	}
	if !strings.Contains(buf.String(), "verdict script failed") {
		t.Errorf("expected failure to be logged, got: %s", buf.String())
	}
}

func TestLuaExtractor_ConcurrentUse(t *testing.T) {
	x, err := NewLuaExtractor("c.lua", `function verdict(text) return keyword_verdict(text) end`)
	if err != nil {
		t.Fatalf("NewLuaExtractor error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := x.Extract("an issue"); got != Concerns {
				t.Errorf("Extract() = %s, want CONCERNS", got)
			}
		}()
	}
	wg.Wait()
}

func TestLoadLuaExtractor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "verdict.lua")
	if err := os.WriteFile(path, []byte(`function verdict(text) return "CONCERNS" end`), 0o644); err != nil {
		t.Fatal(err)
	}

	x, err := LoadLuaExtractor(path)
	if err != nil {
		t.Fatalf("LoadLuaExtractor error = %v", err)
	}
	if got := x.Extract("VERDICT: APPROVE"); got != Concerns {
		t.Errorf("Extract() = %s, want CONCERNS", got)
	}

	if _, err := LoadLuaExtractor(filepath.Join(dir, "missing.lua")); err == nil {
		t.Error("expected error for missing script")
	}
}

func TestLuaExtractor_Repeatable(t *testing.T) {
	tests := []struct {
		name   string
		script string
		text   string
		want   Verdict
	}{
		{
			name:   "keyword delegate",
			script: `function verdict(text) return keyword_verdict(text) end`,
			text:   "possible issue with locking",
			want:   Concerns,
		},
		{
			name: "globals do not carry over between calls",
			script: `seen = (seen or 0) + 1
function verdict(text)
  if seen > 1 then return "CONCERNS" end
  return "APPROVE"
end`,
			text: "VERDICT: APPROVE",
			want: Approve,
		},
		{
			name:   "failing script falls back the same way",
			script: `function verdict(text) error("boom") end`,
			text:   "VERDICT: CONCERNS",
			want:   Concerns,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := NewLuaExtractor("r.lua", tt.script, WithLogger(logging.NopLogger()))
			if err != nil {
				t.Fatalf("NewLuaExtractor error = %v", err)
			}
			for i := 0; i < 20; i++ {
				if got := x.Extract(tt.text); got != tt.want {
					t.Fatalf("Extract() call %d = %s, want %s", i, got, tt.want)
				}
			}
		})
	}
}
