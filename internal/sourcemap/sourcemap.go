package sourcemap

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Segment is one decoded mapping. Columns and lines are 0-based.
type Segment struct {
	GeneratedColumn int

	// Fields is 1 (generated column only), 4 (with source position) or 5
	// (with name).
	Fields         int
	Source         int
	OriginalLine   int
	OriginalColumn int
	Name           int
}

// Map is a decoded source map.
type Map struct {
	Version        int
	File           string
	SourceRoot     string
	Sources        []string
	SourcesContent []*string
	Names          []string

	// Lines holds the segments of each generated line, 0-based.
	Lines [][]Segment
}

type rawMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// Parse decodes a JSON source map.
func Parse(data []byte) (*Map, error) {
	var raw rawMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse source map: %w", err)
	}
	if raw.Version != 3 {
		return nil, fmt.Errorf("parse source map: unsupported version %d", raw.Version)
	}
	lines, err := decodeMappings(raw.Mappings)
	if err != nil {
		return nil, fmt.Errorf("parse source map: mappings: %w", err)
	}
	return &Map{
		Version:        raw.Version,
		File:           raw.File,
		SourceRoot:     raw.SourceRoot,
		Sources:        raw.Sources,
		SourcesContent: raw.SourcesContent,
		Names:          raw.Names,
		Lines:          lines,
	}, nil
}

// MarshalJSON implements json.Marshaler.
func (m *Map) MarshalJSON() ([]byte, error) {
	sources, names := m.Sources, m.Names
	if sources == nil {
		sources = []string{}
	}
	if names == nil {
		names = []string{}
	}
	return json.Marshal(rawMap{
		Version:        3,
		File:           m.File,
		SourceRoot:     m.SourceRoot,
		Sources:        sources,
		SourcesContent: m.SourcesContent,
		Names:          names,
		Mappings:       m.Mappings(),
	})
}

// Mappings returns the encoded mappings string.
func (m *Map) Mappings() string {
	return encodeMappings(m.Lines)
}

// OffsetColumns shifts every segment on generated line (1-based) whose
// column is at or after column by delta.
func (m *Map) OffsetColumns(line, column, delta int) {
	if line < 1 || line > len(m.Lines) || delta == 0 {
		return
	}
	segs := m.Lines[line-1]
	for i := range segs {
		if segs[i].GeneratedColumn >= column {
			segs[i].GeneratedColumn += delta
		}
	}
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	out := *m
	out.Sources = slices.Clone(m.Sources)
	out.Names = slices.Clone(m.Names)
	out.SourcesContent = slices.Clone(m.SourcesContent)
	out.Lines = make([][]Segment, len(m.Lines))
	for i, segs := range m.Lines {
		out.Lines[i] = slices.Clone(segs)
	}
	return &out
}

// decodeMappings decodes the relative VLQ form into absolute segments.
func decodeMappings(s string) ([][]Segment, error) {
	var (
		lines  = [][]Segment{nil}
		source int
		line   int
		column int
		name   int
	)
	genColumn := 0
	for i := 0; i < len(s); {
		switch s[i] {
		case ';':
			lines = append(lines, nil)
			genColumn = 0
			i++
			continue
		case ',':
			i++
			continue
		}

		var (
			fields [5]int
			n      int
			err    error
		)
		for n < 5 && i < len(s) && s[i] != ',' && s[i] != ';' {
			fields[n], i, err = readVLQ(s, i)
			if err != nil {
				return nil, err
			}
			n++
		}
		if n != 1 && n != 4 && n != 5 {
			return nil, fmt.Errorf("segment with %d fields", n)
		}

		genColumn += fields[0]
		seg := Segment{GeneratedColumn: genColumn, Fields: n}
		if n >= 4 {
			source += fields[1]
			line += fields[2]
			column += fields[3]
			seg.Source, seg.OriginalLine, seg.OriginalColumn = source, line, column
		}
		if n == 5 {
			name += fields[4]
			seg.Name = name
		}
		cur := len(lines) - 1
		lines[cur] = append(lines[cur], seg)
	}
	return lines, nil
}

// encodeMappings is the inverse of decodeMappings.
func encodeMappings(lines [][]Segment) string {
	var (
		sb     strings.Builder
		source int
		line   int
		column int
		name   int
	)
	for li, segs := range lines {
		if li > 0 {
			sb.WriteByte(';')
		}
		genColumn := 0
		for si, seg := range segs {
			if si > 0 {
				sb.WriteByte(',')
			}
			appendVLQ(&sb, seg.GeneratedColumn-genColumn)
			genColumn = seg.GeneratedColumn
			if seg.Fields >= 4 {
				appendVLQ(&sb, seg.Source-source)
				appendVLQ(&sb, seg.OriginalLine-line)
				appendVLQ(&sb, seg.OriginalColumn-column)
				source, line, column = seg.Source, seg.OriginalLine, seg.OriginalColumn
			}
			if seg.Fields == 5 {
				appendVLQ(&sb, seg.Name-name)
				name = seg.Name
			}
		}
	}
	return sb.String()
}
