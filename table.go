package injector

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Segment relocates Size bytes starting at From so they start at To.
type Segment struct {
	Name string `yaml:"name,omitempty"`
	From uint64 `yaml:"from"`
	To   uint64 `yaml:"to"`
	Size uint64 `yaml:"size"`
}

func (s Segment) contains(addr uint64) bool {
	return addr >= s.From && addr-s.From < s.Size
}

// Table is a Translator built from a list of relocated segments. Addresses
// outside every segment are not translated.
//
// A table file looks like:
//
//	segments:
//	  - name: .text
//	    from: 0x401000
//	    to: 0x1401000
//	    size: 0x200000
type Table struct {
	Segments []Segment `yaml:"segments"`
}

// NewTable sorts and validates segs.
func NewTable(segs ...Segment) (*Table, error) {
	t := &Table{Segments: slices.Clone(segs)}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTable reads a YAML translation table from r.
func LoadTable(r io.Reader) (*Table, error) {
	var t Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("unable to decode translation table: %w", err)
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadTableFile reads a YAML translation table from a file.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := LoadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func (t *Table) validate() error {
	slices.SortFunc(t.Segments, func(a, b Segment) int {
		switch {
		case a.From < b.From:
			return -1
		case a.From > b.From:
			return 1
		}
		return 0
	})

	for i, seg := range t.Segments {
		if seg.Size == 0 {
			return fmt.Errorf("segment %d (%s): zero size", i, seg.Name)
		}
		if seg.From+seg.Size < seg.From || seg.To+seg.Size < seg.To {
			return fmt.Errorf("segment %d (%s): wraps the address space", i, seg.Name)
		}
		if i > 0 {
			prev := t.Segments[i-1]
			if prev.From+prev.Size > seg.From {
				return fmt.Errorf("segment %d (%s) overlaps %s", i, seg.Name, prev.Name)
			}
		}
	}

	return nil
}

// Translate implements Translator.
func (t *Table) Translate(addr uintptr) uintptr {
	a := uint64(addr)

	// Segments are sorted, find the last one that starts at or before a.
	i, found := slices.BinarySearchFunc(t.Segments, a, func(seg Segment, target uint64) int {
		switch {
		case seg.From < target:
			return -1
		case seg.From > target:
			return 1
		}
		return 0
	})
	if !found {
		i--
	}
	if i < 0 || !t.Segments[i].contains(a) {
		return addr
	}

	seg := t.Segments[i]
	return uintptr(a - seg.From + seg.To)
}
