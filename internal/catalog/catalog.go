// Package catalog implements the slice of the File Catalog that user
// tasks consume directly, per spec.md section 6: a YAML stream of
// entries, each with a path template and an options Cartesian
// product. The catalog's full filesystem-location resolution (the
// "file manager") is an external collaborator out of scope for this
// module -- this package only parses entries and expands their option
// product, which is the part a task author reads from to build its
// own argument list.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one YAML document in the catalog stream.
type Entry struct {
	Description string              `yaml:"description"`
	ID          string              `yaml:"id"`
	FileType    string              `yaml:"filetype"`
	Path        string              `yaml:"path"`
	Author      string              `yaml:"author"`
	Options     map[string][]string `yaml:"options"`
}

// Load parses a YAML stream of catalog entries from path.
func Load(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes every YAML document in data into an Entry.
func Parse(data []byte) ([]Entry, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	var entries []Entry
	for {
		var raw map[string]any
		err := dec.Decode(&raw)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("catalog: decode: %w", err)
		}
		entry, err := fromRaw(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func fromRaw(raw map[string]any) (Entry, error) {
	// A range(...) option is a single string, which does not decode into
	// []string: leave those out of the typed decode and let
	// expandRangeSpecs fill them in from raw.
	typed := make(map[string]any, len(raw))
	for k, v := range raw {
		typed[k] = v
	}
	if rawOpts, ok := raw["options"].(map[string]any); ok {
		listOpts := make(map[string]any, len(rawOpts))
		for k, v := range rawOpts {
			if s, isStr := v.(string); !isStr || !rangeSpec.MatchString(strings.TrimSpace(s)) {
				listOpts[k] = v
			}
		}
		typed["options"] = listOpts
	}
	b, err := yaml.Marshal(typed)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := yaml.Unmarshal(b, &e); err != nil {
		return Entry{}, err
	}
	e.Options, err = expandRangeSpecs(e.Options, raw)
	return e, err
}

// rangeSpec matches e.g. "range(0, 10)" or "range(0, 10, 2)".
var rangeSpec = regexp.MustCompile(`^range\(\s*(-?\d+)\s*,\s*(-?\d+)\s*(?:,\s*(-?\d+)\s*)?\)$`)

func expandRangeSpecs(opts map[string][]string, raw map[string]any) (map[string][]string, error) {
	rawOpts, _ := raw["options"].(map[string]any)
	out := make(map[string][]string, len(opts))
	for k, v := range opts {
		out[k] = v
	}
	for k, rv := range rawOpts {
		s, ok := rv.(string)
		if !ok {
			continue
		}
		m := rangeSpec.FindStringSubmatch(strings.TrimSpace(s))
		if m == nil {
			continue
		}
		start, _ := strconv.Atoi(m[1])
		stop, _ := strconv.Atoi(m[2])
		step := 1
		if m[3] != "" {
			step, _ = strconv.Atoi(m[3])
		}
		if step == 0 {
			return nil, fmt.Errorf("catalog: range() step must be nonzero for option %q", k)
		}
		var values []string
		for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
			values = append(values, strconv.Itoa(i))
		}
		out[k] = values
	}
	return out, nil
}

// Product is one point in an entry's options Cartesian product, ready
// for path formatting.
type Product map[string]string

// Expand returns the Cartesian product of entry.Options, each combined
// with entry.Path formatted via {name} or {name:fmt} placeholders.
func Expand(entry Entry) ([]string, error) {
	keys := make([]string, 0, len(entry.Options))
	for k := range entry.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	products := []Product{{}}
	for _, k := range keys {
		values := entry.Options[k]
		var next []Product
		for _, p := range products {
			for _, v := range values {
				np := Product{}
				for pk, pv := range p {
					np[pk] = pv
				}
				np[k] = v
				next = append(next, np)
			}
		}
		products = next
	}

	out := make([]string, 0, len(products))
	for _, p := range products {
		path, err := FormatPath(entry.Path, p)
		if err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}

// placeholder matches {name} or {name:fmt}.
var placeholder = regexp.MustCompile(`\{(\w+)(:[^}]+)?\}`)

// FormatPath substitutes {name} and {name:fmt} placeholders in path
// using values. Supported formats are the printf-style verbs commonly
// used for numeric padding, e.g. {step:03d}.
func FormatPath(path string, values Product) (string, error) {
	var missing error
	result := placeholder.ReplaceAllStringFunc(path, func(match string) string {
		sub := placeholder.FindStringSubmatch(match)
		name, format := sub[1], strings.TrimPrefix(sub[2], ":")
		val, ok := values[name]
		if !ok {
			missing = fmt.Errorf("catalog: missing value for placeholder %q", name)
			return match
		}
		if format == "" {
			return val
		}
		return formatValue(val, format)
	})
	if missing != nil {
		return "", missing
	}
	return result, nil
}

func formatValue(val, format string) string {
	if strings.HasSuffix(format, "d") {
		width := strings.TrimSuffix(format, "d")
		if n, err := strconv.Atoi(val); err == nil {
			if w, err := strconv.Atoi(strings.TrimPrefix(width, "0")); err == nil {
				return fmt.Sprintf("%0*d", w, n)
			}
		}
	}
	return val
}

// Select returns every entry whose description contains substr
// (case-insensitive) and whose options satisfy every key/value filter.
func Select(entries []Entry, substr string, filters map[string]string) []Entry {
	substr = strings.ToLower(substr)
	var out []Entry
	for _, e := range entries {
		if substr != "" && !strings.Contains(strings.ToLower(e.Description), substr) {
			continue
		}
		match := true
		for k, v := range filters {
			values, ok := e.Options[k]
			if !ok || !contains(values, v) {
				match = false
				break
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
