package cli

import (
	"flag"
	"io"
	"strings"
	"testing"
)

func TestHelpVersionAliases(t *testing.T) {
	cases := []struct {
		arg         string
		wantHelp    bool
		wantVersion bool
	}{
		{"-h", true, false},
		{"--help", true, false},
		{"-V", false, true},
		{"--version", false, true},
	}
	for _, testCase := range cases {
		t.Run(testCase.arg, func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			flags := AddHelpVersionFlags(fs, "", "")

			if err := fs.Parse([]string{testCase.arg}); err != nil {
				t.Fatalf("parse: %v", err)
			}
			if flags.Help != testCase.wantHelp || flags.Version != testCase.wantVersion {
				t.Fatalf("%s: help=%v version=%v", testCase.arg, flags.Help, flags.Version)
			}
		})
	}
}

func TestAddHelpVersionFlagsNilSet(t *testing.T) {
	flags := AddHelpVersionFlags(nil, "", "")
	if flags == nil || flags.Help || flags.Version {
		t.Fatalf("expected zero flags from nil flag set, got %+v", flags)
	}
}

func TestWriteOptionGroupAlignsDescriptions(t *testing.T) {
	var out strings.Builder
	WriteOptionGroup(&out, "Watching", []Option{
		{Name: "--exclude REGEX", Desc: "Ignore matching paths"},
		{Name: "--debounce DUR", Desc: "Quiet interval before a run"},
	})

	lines := strings.Split(out.String(), "\n")
	if lines[0] != "  Watching:" {
		t.Fatalf("expected group title, got %q", lines[0])
	}
	first := strings.Index(lines[1], "Ignore matching paths")
	second := strings.Index(lines[2], "Quiet interval before a run")
	if first == -1 || second == -1 || first != second {
		t.Fatalf("descriptions not aligned:\n%s", out.String())
	}
	if lines[len(lines)-2] != "" {
		t.Fatalf("expected blank line after group:\n%q", lines)
	}
}
