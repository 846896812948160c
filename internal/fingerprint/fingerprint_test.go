package fingerprint

import "testing"

func TestComputeDeterministic(t *testing.T) {
	fp1, err := Compute("pkg.Fn@file.go:10", map[string]any{"a": 1}, map[string]any{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	fp2, err := Compute("pkg.Fn@file.go:10", map[string]any{"a": 1}, map[string]any{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if fp1 != fp2 {
		t.Fatalf("same inputs produced different fingerprints: %s != %s", fp1, fp2)
	}
}

func TestComputeSensitiveToEveryField(t *testing.T) {
	base, err := Compute("identity", "args", "kwargs", []string{"dep1"})
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{}
	var cur string

	cur, err = Compute("identity-changed", "args", "kwargs", []string{"dep1"})
	if err != nil {
		t.Fatal(err)
	}
	cases["identity"] = cur

	cur, err = Compute("identity", "args-changed", "kwargs", []string{"dep1"})
	if err != nil {
		t.Fatal(err)
	}
	cases["args"] = cur

	cur, err = Compute("identity", "args", "kwargs-changed", []string{"dep1"})
	if err != nil {
		t.Fatal(err)
	}
	cases["kwargs"] = cur

	cur, err = Compute("identity", "args", "kwargs", []string{"dep2"})
	if err != nil {
		t.Fatal(err)
	}
	cases["deps"] = cur

	for field, fp := range cases {
		if fp == base {
			t.Errorf("changing %s did not change the fingerprint", field)
		}
	}
}

func TestComputeDepOrderMatters(t *testing.T) {
	fp1, err := Compute("identity", "args", "kwargs", []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	fp2, err := Compute("identity", "args", "kwargs", []string{"b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if fp1 == fp2 {
		t.Fatal("swapping dependency order did not change the fingerprint")
	}
}

func TestComputeProducesHexDigest(t *testing.T) {
	fp, err := Compute("identity", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(fp) != 64 {
		t.Fatalf("expected a 32-byte blake2b-256 digest hex-encoded to 64 chars, got %d", len(fp))
	}
	for _, c := range fp {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("fingerprint %q is not lowercase hex", fp)
		}
	}
}
