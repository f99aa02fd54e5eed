package chain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jmerrifield20/ActionLedger/internal/chain"
)

func TestHashContent_deterministic(t *testing.T) {
	a := chain.HashContent("hello world")
	b := chain.HashContent("hello world")
	if a != b {
		t.Errorf("HashContent not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("digest length: got %d, want 64", len(a))
	}
	if a != strings.ToLower(a) {
		t.Errorf("digest not lowercase: %q", a)
	}
	// Known SHA-256 of "hello world".
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if a != want {
		t.Errorf("HashContent(\"hello world\") = %q, want %q", a, want)
	}
}

func TestHashContent_distinctInputs(t *testing.T) {
	if chain.HashContent("a") == chain.HashContent("b") {
		t.Error("distinct inputs produced identical digests")
	}
}

func TestGenesisAndZeroConstants(t *testing.T) {
	if chain.GenesisLink != strings.Repeat("0", 64) {
		t.Errorf("GenesisLink = %q, want 64 zeros", chain.GenesisLink)
	}
	if chain.ZeroDigest != strings.Repeat("0", 64) {
		t.Errorf("ZeroDigest = %q, want 64 zeros", chain.ZeroDigest)
	}
}

func basePreimage() chain.Preimage {
	return chain.Preimage{
		AgentID:        "a1",
		SequenceNumber: 1,
		ActionType:     "llm_start",
		InputHash:      chain.HashContent("prompt"),
		OutputHash:     chain.ZeroDigest,
		Timestamp:      time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC),
	}
}

func TestComputeLink_deterministic(t *testing.T) {
	p := basePreimage()
	a := chain.ComputeLink(chain.GenesisLink, p)
	b := chain.ComputeLink(chain.GenesisLink, p)
	if a != b {
		t.Errorf("ComputeLink not deterministic: %q vs %q", a, b)
	}
	if !chain.ValidDigest(a) {
		t.Errorf("link is not a valid digest: %q", a)
	}
}

func TestComputeLink_sensitiveToEveryField(t *testing.T) {
	base := chain.ComputeLink(chain.GenesisLink, basePreimage())

	mutations := map[string]func(*chain.Preimage){
		"agent_id":        func(p *chain.Preimage) { p.AgentID = "a2" },
		"sequence_number": func(p *chain.Preimage) { p.SequenceNumber = 2 },
		"action_type":     func(p *chain.Preimage) { p.ActionType = "llm_end" },
		"input_hash":      func(p *chain.Preimage) { p.InputHash = chain.HashContent("other") },
		"output_hash":     func(p *chain.Preimage) { p.OutputHash = chain.HashContent("out") },
		"tool_name":       func(p *chain.Preimage) { p.ToolName = "search" },
		"environment":     func(p *chain.Preimage) { p.Environment = "prod" },
		"model_version":   func(p *chain.Preimage) { p.ModelVersion = "gpt-4" },
		"prompt_version":  func(p *chain.Preimage) { p.PromptVersion = "p2" },
		"timestamp":       func(p *chain.Preimage) { p.Timestamp = p.Timestamp.Add(time.Microsecond) },
	}

	for field, mutate := range mutations {
		p := basePreimage()
		mutate(&p)
		if chain.ComputeLink(chain.GenesisLink, p) == base {
			t.Errorf("mutating %s did not change the link hash", field)
		}
	}
}

func TestComputeLink_sensitiveToPrevLink(t *testing.T) {
	p := basePreimage()
	a := chain.ComputeLink(chain.GenesisLink, p)
	b := chain.ComputeLink(chain.HashContent("other prefix"), p)
	if a == b {
		t.Error("different prev links produced identical link hashes")
	}
}

func TestValidDigest(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{chain.ZeroDigest, true},
		{chain.HashContent("x"), true},
		{"", false},
		{strings.Repeat("0", 63), false},
		{strings.Repeat("0", 65), false},
		{strings.Repeat("G", 64), false},
		{strings.ToUpper(chain.HashContent("x")), false},
	}
	for _, c := range cases {
		if got := chain.ValidDigest(c.in); got != c.want {
			t.Errorf("ValidDigest(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNormalizeDigest(t *testing.T) {
	if chain.NormalizeDigest("") != chain.ZeroDigest {
		t.Error("empty digest should normalize to ZeroDigest")
	}
	upper := strings.ToUpper(chain.HashContent("x"))
	if chain.NormalizeDigest(upper) != chain.HashContent("x") {
		t.Error("upper-case digest should normalize to lowercase")
	}
}
