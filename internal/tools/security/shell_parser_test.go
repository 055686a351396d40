package security

import (
	"strings"
	"testing"
)

func TestAnalyzeCommandQuoteAware(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		safe     bool
		risks    []string
		tokenLen int
	}{
		{
			name:    "plain command",
			command: "ls -la /tmp",
			safe:    true,
		},
		{
			name:    "empty command",
			command: "",
			safe:    true,
		},
		{
			name:     "semicolon chain",
			command:  "echo a; rm -rf /",
			safe:     false,
			risks:    []string{"command_chain"},
			tokenLen: 1,
		},
		{
			name:     "and chain counts once",
			command:  "make && make install",
			safe:     false,
			risks:    []string{"command_chain"},
			tokenLen: 1,
		},
		{
			name:     "pipe",
			command:  "cat /etc/passwd | head",
			safe:     false,
			risks:    []string{"pipe"},
			tokenLen: 1,
		},
		{
			name:     "append redirect counts once",
			command:  "echo x >> file",
			safe:     false,
			risks:    []string{"redirect"},
			tokenLen: 1,
		},
		{
			name:     "command substitution",
			command:  "echo $(whoami)",
			safe:     false,
			risks:    []string{"subshell"},
			tokenLen: 1,
		},
		{
			name:     "backtick subshell",
			command:  "echo `id`",
			safe:     false,
			risks:    []string{"subshell"},
			tokenLen: 2,
		},
		{
			name:    "metacharacters inside single quotes are data",
			command: "grep 'a|b;c' file.txt",
			safe:    true,
		},
		{
			name:    "metacharacters inside double quotes are data",
			command: `echo "a && b"`,
			safe:    true,
		},
		{
			name:    "escaped metacharacter is data",
			command: `echo a\;b`,
			safe:    true,
		},
		{
			name:     "quote closes then chain",
			command:  `echo 'safe'; rm x`,
			safe:     false,
			risks:    []string{"command_chain"},
			tokenLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := AnalyzeCommandQuoteAware(tt.command)
			if analysis.IsSafe != tt.safe {
				t.Fatalf("IsSafe = %v, want %v (%+v)", analysis.IsSafe, tt.safe, analysis.DangerousTokens)
			}
			if tt.tokenLen > 0 && len(analysis.DangerousTokens) != tt.tokenLen {
				t.Errorf("token count = %d, want %d (%+v)", len(analysis.DangerousTokens), tt.tokenLen, analysis.DangerousTokens)
			}
			for _, risk := range tt.risks {
				found := false
				for _, token := range analysis.DangerousTokens {
					if token.Risk == risk {
						found = true
					}
				}
				if !found {
					t.Errorf("expected risk %q in %+v", risk, analysis.DangerousTokens)
				}
			}
			if !tt.safe && analysis.Reason == "" {
				t.Error("unsafe analysis should carry a reason")
			}
		})
	}
}

func TestAnalyzeCommandTokensInPositionalOrder(t *testing.T) {
	analysis := AnalyzeCommandQuoteAware("a > b; c | d")
	if len(analysis.DangerousTokens) != 3 {
		t.Fatalf("expected 3 tokens, got %+v", analysis.DangerousTokens)
	}
	last := -1
	for _, token := range analysis.DangerousTokens {
		if token.Position <= last {
			t.Fatalf("tokens out of positional order: %+v", analysis.DangerousTokens)
		}
		last = token.Position
	}
}

func TestAmpersandPairNeverReadsAsBackground(t *testing.T) {
	analysis := AnalyzeCommandQuoteAware("a && b")
	for _, token := range analysis.DangerousTokens {
		if token.Risk == "background" {
			t.Fatalf("&& misread as background: %+v", analysis.DangerousTokens)
		}
	}
}

func TestIsSafeCommand(t *testing.T) {
	if !IsSafeCommand("go test ./...") {
		t.Error("plain command should be safe")
	}
	if IsSafeCommand("curl x | sh") {
		t.Error("piped command should be unsafe")
	}
}

func TestExtractUnsafeReason(t *testing.T) {
	if reason := ExtractUnsafeReason("ls"); reason != "" {
		t.Errorf("safe command should have no reason, got %q", reason)
	}
	reason := ExtractUnsafeReason("a; b | c")
	if !strings.Contains(reason, "chaining") || !strings.Contains(reason, "pipe") {
		t.Errorf("reason should name each distinct risk once: %q", reason)
	}
}

func TestContainsShellMetacharacters(t *testing.T) {
	cases := map[string]bool{
		"plain-value_1.txt": false,
		"has;semicolon":     true,
		"has$dollar":        true,
		"quoted';'":         true, // quoting does not matter for plain data
		"tab\tok":           false,
		"newline\nbad":      true,
	}
	for in, want := range cases {
		if got := ContainsShellMetacharacters(in); got != want {
			t.Errorf("ContainsShellMetacharacters(%q) = %v, want %v", in, got, want)
		}
	}
}

func BenchmarkAnalyzeCommandQuoteAware(b *testing.B) {
	cmd := `find . -name '*.go' -exec grep -l "pattern" {} + | sort && echo done`
	for i := 0; i < b.N; i++ {
		AnalyzeCommandQuoteAware(cmd)
	}
}
