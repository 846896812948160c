package catalog

import (
	"sort"
	"testing"
)

const sampleYAML = `
description: power spectrum mocks
id: pk-mock
filetype: fits
path: mocks/{tracer}/pk-{zrange}-{seed:04d}.fits
author: desi
options:
  tracer: ["LRG", "ELG"]
  zrange: ["z1", "z2"]
  seed: "range(0, 3)"
`

func TestParseExpandsRangeOption(t *testing.T) {
	entries, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	seeds := entries[0].Options["seed"]
	if got := seeds; len(got) != 3 || got[0] != "0" || got[2] != "2" {
		t.Fatalf("expected range(0,3) to expand to [0 1 2], got %v", got)
	}
}

func TestExpandProducesFullCartesianProduct(t *testing.T) {
	entries, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	paths, err := Expand(entries[0])
	if err != nil {
		t.Fatal(err)
	}
	// 2 tracers * 2 zranges * 3 seeds
	if len(paths) != 12 {
		t.Fatalf("expected 12 expanded paths, got %d: %v", len(paths), paths)
	}
	sort.Strings(paths)
	want := "mocks/ELG/pk-z1-0000.fits"
	found := false
	for _, p := range paths {
		if p == want {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected to find %q among expanded paths, got %v", want, paths)
	}
}

func TestFormatPathZeroPadsNumericPlaceholder(t *testing.T) {
	path, err := FormatPath("run-{seed:03d}.out", Product{"seed": "7"})
	if err != nil {
		t.Fatal(err)
	}
	if path != "run-007.out" {
		t.Fatalf("expected zero-padded seed, got %q", path)
	}
}

func TestFormatPathMissingValueErrors(t *testing.T) {
	if _, err := FormatPath("run-{seed}.out", Product{}); err == nil {
		t.Fatal("expected an error for a missing placeholder value")
	}
}

func TestSelectFiltersByDescriptionAndOptions(t *testing.T) {
	entries, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	matches := Select(entries, "power spectrum", map[string]string{"tracer": "LRG"})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if none := Select(entries, "galaxy catalog", nil); len(none) != 0 {
		t.Fatalf("expected no matches for an unrelated description, got %d", len(none))
	}
}

func TestRangeStepZeroErrors(t *testing.T) {
	bad := `
description: bad range
path: "x-{n}.out"
options:
  n: "range(0, 10, 0)"
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected an error for a range() with a zero step")
	}
}
