package pattern

import "testing"

func TestCompile_Negation(t *testing.T) {
	m, err := Compile("!dist/keep.js")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !m.Negate() {
		t.Error("expected Negate() = true")
	}
	if !m.Match("dist/keep.js") {
		t.Error("expected pattern to match dist/keep.js")
	}
}

func TestRuleSet_LastMatchWins(t *testing.T) {
	rs, err := CompileRuleSet([]string{
		"dist/**",
		"!dist/keep.js",
	})
	if err != nil {
		t.Fatalf("CompileRuleSet() error = %v", err)
	}

	if !rs.Excluded("dist/drop.js") {
		t.Error("expected dist/drop.js to be excluded")
	}
	if rs.Excluded("dist/keep.js") {
		t.Error("expected dist/keep.js to be re-included by negation")
	}
	if rs.Excluded("src/index.js") {
		t.Error("expected unrelated path to remain included")
	}
}

func TestRuleSet_SkipsBlankAndComments(t *testing.T) {
	rs, err := CompileRuleSet([]string{"", "# comment", "*.log"})
	if err != nil {
		t.Fatalf("CompileRuleSet() error = %v", err)
	}
	if !rs.Excluded("debug.log") {
		t.Error("expected debug.log to be excluded")
	}
}

func TestAllowlist_DirectoryEntry(t *testing.T) {
	al, err := CompileAllowlist([]string{"dist", "index.js"})
	if err != nil {
		t.Fatalf("CompileAllowlist() error = %v", err)
	}
	if !al.Included("dist/main.js") {
		t.Error("expected dist/main.js to be included via directory entry")
	}
	if !al.Included("index.js") {
		t.Error("expected index.js to be included")
	}
	if al.Included("src/internal.js") {
		t.Error("expected src/internal.js to be excluded")
	}
}

func TestAllowlist_NilOrEmptyIncludesEverything(t *testing.T) {
	var al *Allowlist
	if !al.Included("anything.js") {
		t.Error("expected nil allowlist to include everything")
	}

	empty, err := CompileAllowlist(nil)
	if err != nil {
		t.Fatalf("CompileAllowlist() error = %v", err)
	}
	if !empty.Included("anything.js") {
		t.Error("expected empty allowlist to include everything")
	}
}

func TestIsAlwaysIncluded(t *testing.T) {
	if !IsAlwaysIncluded("package.json") {
		t.Error("expected package.json to always be included")
	}
	if IsAlwaysIncluded("src/index.js") {
		t.Error("expected arbitrary source file to not be always-included")
	}
}
