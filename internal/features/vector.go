// SPDX-License-Identifier: MIT
package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Vector is one fixed-order feature vector. Entry i is the feature Names[i].
type Vector [Count]float64

// Get returns the value of the named feature.
func (v Vector) Get(name string) (float64, bool) {
	i, ok := Index(name)
	if !ok {
		return 0, false
	}
	return v[i], true
}

// Slice returns a copy of v as a slice, the shape models consume.
func (v Vector) Slice() []float64 {
	out := make([]float64, Count)
	copy(out, v[:])
	return out
}

// Finite reports whether every entry is a finite number.
func (v Vector) Finite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Named returns v paired with the canonical names.
func (v Vector) Named() Named {
	return Named{Names: slices.Clone(Names[:]), Values: v.Slice()}
}

// MarshalJSON encodes v as an object whose keys appear in vector order.
func (v Vector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(Count * 32)
	buf.WriteByte('{')
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("feature %s is not finite", Names[i])
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(Names[i])
		buf.WriteString(`":`)
		buf.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an ordered object produced by MarshalJSON. Keys must
// match Names exactly and in order.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var n Named
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	out, err := n.Vector()
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Named is a feature vector supplied from outside with its own key order,
// such as a JSON request body or a CSV header.
type Named struct {
	Names  []string
	Values []float64
}

// Vector converts n to a Vector. It fails with a *MismatchError unless the
// names equal Names in content and order.
func (n Named) Vector() (Vector, error) {
	var v Vector
	if len(n.Values) != len(n.Names) {
		return v, fmt.Errorf("feature list has %d names but %d values", len(n.Names), len(n.Values))
	}
	if err := CheckNames(n.Names); err != nil {
		return v, err
	}
	copy(v[:], n.Values)
	return v, nil
}

// UnmarshalJSON decodes a JSON object into n, keeping the key order of the
// document.
func (n *Named) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("feature vector must be a JSON object")
	}

	names := make([]string, 0, Count)
	values := make([]float64, 0, Count)
	seen := make(map[string]struct{}, Count)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate feature %q", key)
		}
		seen[key] = struct{}{}

		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return fmt.Errorf("feature %q: %w", key, err)
		}
		f, err := num.Float64()
		if err != nil {
			return fmt.Errorf("feature %q: %w", key, err)
		}
		names = append(names, key)
		values = append(values, f)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	n.Names, n.Values = names, values
	return nil
}
