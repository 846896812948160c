// Package resolver implements the Dependency Resolver of spec.md
// section 4.5: a recursive walk of a task's arguments that lifts
// embedded futures into dependency edges and placeholder markers, and
// the matching substitution step that materializes them at dispatch
// time.
package resolver

import "fmt"

// FutureRef is satisfied by any client-side future handle embedded in
// a task's arguments. The resolver only needs a task id (to record the
// dependency edge) and a fingerprint (to fold into the new task's own
// fingerprint) -- it never depends on the concrete Future type, which
// lives in the public desipipe package.
type FutureRef interface {
	RefTaskID() string
	RefFingerprint() string
}

// Kind tags the shape of one node of an argument tree.
type Kind int

const (
	KindScalar Kind = iota
	KindList
	KindMap
	KindFuture
)

// Node is the tagged-variant representation of one argument tree node,
// per the REDESIGN FLAGS note on dynamic argument capture: a
// heterogeneous argument tree walked once and rewritten with
// placeholders, rather than rewritten in place.
type Node struct {
	Kind   Kind            `json:"kind"`
	Scalar any             `json:"scalar,omitempty"`
	List   []Node          `json:"list,omitempty"`
	Map    map[string]Node `json:"map,omitempty"`
	// FutureTaskID is the referent's store id, used by Substitute to
	// look up its materialized result at dispatch time. It is
	// session-local (ids are monotonic per store) and must never be
	// hashed into a fingerprint -- see FutureFingerprint and Canonical.
	FutureTaskID string `json:"future_task_id,omitempty"`
	// FutureFingerprint is the referent's content fingerprint, captured
	// at Walk time. Canonical substitutes this in place of
	// FutureTaskID so that content-addressing a task whose arguments
	// embed a future is stable across processes, per spec.md section
	// 4.2's "replaced by its referent's fingerprint."
	FutureFingerprint string `json:"future_fingerprint,omitempty"`
}

// Walk converts a value into its Node form, recording (in encounter
// order, de-duplicated) the ids and fingerprints of every embedded
// future. Accepted scalar shapes are the usual JSON-ish ones: nil,
// bool, numeric types, string, []any, map[string]any, plus
// FutureRef -- matching the args a caller would plausibly pass to a
// PythonApp or BashApp.
func Walk(v any) (Node, []string, []string, error) {
	w := &walker{seen: map[string]bool{}}
	node, err := w.walk(v)
	return node, w.depIDs, w.depFingerprints, err
}

type walker struct {
	seen            map[string]bool
	depIDs          []string
	depFingerprints []string
}

func (w *walker) walk(v any) (Node, error) {
	switch x := v.(type) {
	case nil, bool, string, int, int64, float64, float32:
		return Node{Kind: KindScalar, Scalar: x}, nil
	case FutureRef:
		id, fp := x.RefTaskID(), x.RefFingerprint()
		if !w.seen[id] {
			w.seen[id] = true
			w.depIDs = append(w.depIDs, id)
			w.depFingerprints = append(w.depFingerprints, fp)
		}
		return Node{Kind: KindFuture, FutureTaskID: id, FutureFingerprint: fp}, nil
	case []any:
		list := make([]Node, len(x))
		for i, item := range x {
			n, err := w.walk(item)
			if err != nil {
				return Node{}, err
			}
			list[i] = n
		}
		return Node{Kind: KindList, List: list}, nil
	case map[string]any:
		m := make(map[string]Node, len(x))
		for k, item := range x {
			n, err := w.walk(item)
			if err != nil {
				return Node{}, err
			}
			m[k] = n
		}
		return Node{Kind: KindMap, Map: m}, nil
	default:
		return Node{}, fmt.Errorf("resolver: unsupported argument type %T", v)
	}
}

// Canonical returns a JSON-serializable representation of the node
// tree suitable for content-addressing: each future placeholder is
// keyed by its referent's fingerprint rather than its store id, so two
// calls with equivalent arguments hash the same regardless of which
// session enqueued the dependency or what id it was assigned. Use this
// -- never the Node itself -- wherever the tree feeds fingerprint.Compute.
func (n Node) Canonical() any {
	switch n.Kind {
	case KindScalar:
		return n.Scalar
	case KindFuture:
		return map[string]any{"future": n.FutureFingerprint}
	case KindList:
		out := make([]any, len(n.List))
		for i, item := range n.List {
			out[i] = item.Canonical()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(n.Map))
		for k, item := range n.Map {
			out[k] = item.Canonical()
		}
		return out
	default:
		return nil
	}
}

// Substitute rebuilds a plain Go value from a Node, replacing each
// future placeholder with its referent's materialized result from
// results (task id -> decoded payload). Per the ordering guarantee of
// spec.md section 4.5, this must only be called once every referenced
// dependency id is present in results.
func Substitute(n Node, results map[string]any) (any, error) {
	switch n.Kind {
	case KindScalar:
		return n.Scalar, nil
	case KindFuture:
		v, ok := results[n.FutureTaskID]
		if !ok {
			return nil, fmt.Errorf("resolver: missing result for dependency %s", n.FutureTaskID)
		}
		return v, nil
	case KindList:
		out := make([]any, len(n.List))
		for i, item := range n.List {
			v, err := Substitute(item, results)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case KindMap:
		out := make(map[string]any, len(n.Map))
		for k, item := range n.Map {
			v, err := Substitute(item, results)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("resolver: unknown node kind %d", n.Kind)
	}
}
