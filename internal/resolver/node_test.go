package resolver

import (
	"reflect"
	"testing"
)

type fakeFuture struct {
	id string
	fp string
}

func (f *fakeFuture) RefTaskID() string      { return f.id }
func (f *fakeFuture) RefFingerprint() string { return f.fp }

func TestWalkScalar(t *testing.T) {
	node, ids, fps, err := Walk("hello")
	if err != nil {
		t.Fatal(err)
	}
	if node.Kind != KindScalar || node.Scalar != "hello" {
		t.Fatalf("unexpected node: %+v", node)
	}
	if len(ids) != 0 || len(fps) != 0 {
		t.Fatalf("expected no dependencies, got ids=%v fps=%v", ids, fps)
	}
}

func TestWalkLiftsFutureIntoDependency(t *testing.T) {
	f := &fakeFuture{id: "7", fp: "abc"}
	node, ids, fps, err := Walk([]any{1, f, "x"})
	if err != nil {
		t.Fatal(err)
	}
	if node.Kind != KindList || len(node.List) != 3 {
		t.Fatalf("unexpected node: %+v", node)
	}
	if node.List[1].Kind != KindFuture || node.List[1].FutureTaskID != "7" {
		t.Fatalf("future was not lifted into a placeholder: %+v", node.List[1])
	}
	if node.List[1].FutureFingerprint != "abc" {
		t.Fatalf("expected the placeholder to capture the referent's fingerprint, got %+v", node.List[1])
	}
	if !reflect.DeepEqual(ids, []string{"7"}) {
		t.Fatalf("expected dep ids [7], got %v", ids)
	}
	if !reflect.DeepEqual(fps, []string{"abc"}) {
		t.Fatalf("expected dep fingerprints [abc], got %v", fps)
	}
}

func TestWalkDedupesRepeatedFuture(t *testing.T) {
	f := &fakeFuture{id: "7", fp: "abc"}
	_, ids, fps, err := Walk(map[string]any{"a": f, "b": f})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || len(fps) != 1 {
		t.Fatalf("expected the repeated future to be recorded once, got ids=%v fps=%v", ids, fps)
	}
}

func TestWalkRejectsUnsupportedType(t *testing.T) {
	if _, _, _, err := Walk(struct{ X int }{1}); err == nil {
		t.Fatal("expected an error for an unsupported argument type")
	}
}

func TestSubstituteRoundTrip(t *testing.T) {
	f := &fakeFuture{id: "7", fp: "abc"}
	node, _, _, err := Walk(map[string]any{"n": 1, "dep": f, "list": []any{f, "tail"}})
	if err != nil {
		t.Fatal(err)
	}
	v, err := Substitute(node, map[string]any{"7": "resolved"})
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected a map, got %T", v)
	}
	if m["dep"] != "resolved" {
		t.Fatalf("future placeholder was not substituted: %+v", m)
	}
	list, ok := m["list"].([]any)
	if !ok || list[0] != "resolved" || list[1] != "tail" {
		t.Fatalf("nested future placeholder was not substituted: %+v", m)
	}
}

func TestCanonicalIsIndependentOfTaskID(t *testing.T) {
	nodeA, _, _, err := Walk([]any{1, &fakeFuture{id: "7", fp: "same-fp"}})
	if err != nil {
		t.Fatal(err)
	}
	nodeB, _, _, err := Walk([]any{1, &fakeFuture{id: "999", fp: "same-fp"}})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(nodeA.Canonical(), nodeB.Canonical()) {
		t.Fatalf("expected Canonical to hash the same regardless of the referent's store id: %+v vs %+v", nodeA.Canonical(), nodeB.Canonical())
	}
}

func TestCanonicalDiffersWhenFingerprintDiffers(t *testing.T) {
	nodeA, _, _, err := Walk(&fakeFuture{id: "7", fp: "fp-a"})
	if err != nil {
		t.Fatal(err)
	}
	nodeB, _, _, err := Walk(&fakeFuture{id: "7", fp: "fp-b"})
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(nodeA.Canonical(), nodeB.Canonical()) {
		t.Fatal("expected Canonical to differ when the referent's fingerprint differs")
	}
}

func TestSubstituteMissingDependencyErrors(t *testing.T) {
	f := &fakeFuture{id: "7", fp: "abc"}
	node, _, _, err := Walk(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Substitute(node, map[string]any{}); err == nil {
		t.Fatal("expected an error when the referenced dependency has no result")
	}
}
