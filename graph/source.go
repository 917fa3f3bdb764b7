package graph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record types of the line-oriented graph source format:
//
//	# comment
//	NODE    <id> <shader_name> <vert|frag|comp|tesc|tese|geom>
//	EDGE    <from> <to>
//	INPUT   <node_id> <resource>
//	OUTPUT  <node_id> <resource>
//	DRAW    <pipeline_name> <draw_op>
//	SETTING <key> <value>
const (
	RecordNode    = "NODE"
	RecordEdge    = "EDGE"
	RecordInput   = "INPUT"
	RecordOutput  = "OUTPUT"
	RecordDraw    = "DRAW"
	RecordSetting = "SETTING"
)

// maxLineSize bounds one source line.
const maxLineSize = 1 << 20

// fieldCounts is the token count (record type included) of each record.
var fieldCounts = map[string]int{
	RecordNode:    4,
	RecordEdge:    3,
	RecordInput:   3,
	RecordOutput:  3,
	RecordDraw:    3,
	RecordSetting: 3,
}

// Parse reads a graph source. Blank lines and lines starting with '#' are
// skipped. Any malformed or unknown record aborts parsing with a
// *ParseError naming the line. The returned graph is not validated.
func Parse(r io.Reader) (*Graph, error) {
	g := New()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		record := fields[0]
		want, known := fieldCounts[record]
		if !known {
			return nil, &ParseError{Line: line, Record: record, Err: ErrUnknownRecord}
		}
		if len(fields) != want {
			return nil, &ParseError{Line: line, Record: record,
				Err: fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(fields), want)}
		}
		if err := g.apply(record, fields[1:]); err != nil {
			return nil, &ParseError{Line: line, Record: record, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		// The scanner stops on the line after the last one it returned.
		return nil, &ParseError{Line: line + 1, Err: err}
	}
	return g, nil
}

func (g *Graph) apply(record string, args []string) error {
	switch record {
	case RecordNode:
		return g.AddNode(Node{ID: args[0], ShaderName: args[1], Stage: StageFromExtension(args[2])})
	case RecordEdge:
		return g.AddEdge(Edge{From: args[0], To: args[1]})
	case RecordInput:
		g.SetInput(Endpoint{NodeID: args[0], Resource: args[1]})
	case RecordOutput:
		g.SetOutput(Endpoint{NodeID: args[0], Resource: args[1]})
	case RecordDraw:
		return g.AddDrawBinding(DrawBinding{Pipeline: args[0], DrawOp: args[1]})
	case RecordSetting:
		return g.AddSetting(args[0], args[1])
	}
	return nil
}

// ParseFile parses the graph source at path and validates the result.
func ParseFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("graph: open source: %w", err)
	}
	defer f.Close()

	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%s: graph validation failed: %w", path, err)
	}
	return g, nil
}
