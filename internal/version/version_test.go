package version

import (
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestColoredPlain(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	tests := []struct {
		in, want string
	}{
		{"0.1.0-dev", "0.1.0-dev"},
		{"1.2.3", "1.2.3"},
		{"1.2.3+meta", "1.2.3+meta"},
		{"nightly", "nightly"},
	}
	for _, tt := range tests {
		if got := Colored(tt.in); got != tt.want {
			t.Fatalf("Colored(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestColoredAddsEscapes(t *testing.T) {
	if os.Getenv("NO_COLOR") != "" {
		t.Skip("NO_COLOR is set")
	}
	prev := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = prev }()

	got := Colored("1.2.3-rc1")
	want := majorColor.Sprint("1") + "." + minorColor.Sprint("2") + "." + patchColor.Sprint("3") + "-rc1"
	if got != want {
		t.Fatalf("Colored = %q, want %q", got, want)
	}
	if !strings.Contains(got, "\x1b[") {
		t.Fatalf("expected ANSI output, got %q", got)
	}
}

func TestPrettyOptionalFields(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	info := Info{Version: "1.2.3", GoVersion: "go1.25.1", Platform: "linux/amd64"}
	out := info.Pretty()
	if strings.Contains(out, "commit:") || strings.Contains(out, "built:") {
		t.Fatalf("empty fields rendered:\n%s", out)
	}
	info.GitCommit = "abc123"
	info.BuildDate = "2024-01-15T10:30:00Z"
	out = info.Pretty()
	for _, want := range []string{"asmcorpus 1.2.3", "commit: abc123", "built:  2024-01-15T10:30:00Z", "linux/amd64"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q:\n%s", want, out)
		}
	}
}

func TestCurrentReflectsOverrides(t *testing.T) {
	orig := GitCommit
	GitCommit = "deadbeef"
	defer func() { GitCommit = orig }()
	if Current().GitCommit != "deadbeef" {
		t.Fatal("override not reflected")
	}
}
