package graph

import (
	"errors"
	"strconv"
)

// Sentinel errors. Typed errors below wrap one of these so callers can
// match with errors.Is.
var (
	ErrBlankID          = errors.New("graph: node id cannot be blank")
	ErrBlankShaderName  = errors.New("graph: shader name cannot be blank")
	ErrUnknownStage     = errors.New("graph: shader stage is unknown")
	ErrDuplicateNode    = errors.New("graph: duplicate node id")
	ErrMissingNode      = errors.New("graph: node does not exist")
	ErrEmptyGraph       = errors.New("graph: graph has no nodes")
	ErrMissingInput     = errors.New("graph: graph is missing input endpoint")
	ErrMissingOutput    = errors.New("graph: graph is missing output endpoint")
	ErrInvalidBinding   = errors.New("graph: invalid draw binding")
	ErrInvalidPipeline  = errors.New("graph: invalid pipeline definition")
	ErrInvalidSetting   = errors.New("graph: invalid setting")
	ErrDuplicateBinding = errors.New("graph: duplicate draw binding")
	ErrUnknownRecord    = errors.New("unknown record type")
	ErrFieldCount       = errors.New("wrong number of fields")
)

// NodeError reports why a node was rejected by AddNode.
type NodeError struct {
	ID  string
	Err error
}

func (e *NodeError) Error() string {
	if e.ID == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.ID
}

func (e *NodeError) Unwrap() error { return e.Err }

// EdgeError reports an edge whose endpoint does not exist. Side is "source"
// or "target".
type EdgeError struct {
	Side   string
	NodeID string
}

func (e *EdgeError) Error() string {
	return "graph: edge " + e.Side + " node does not exist: " + e.NodeID
}

func (e *EdgeError) Unwrap() error { return ErrMissingNode }

// ValidationError reports a failed Validate call. Subject names the
// offending identifier when there is one.
type ValidationError struct {
	Subject string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Subject == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Subject
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ParseError reports a malformed record in a graph source.
type ParseError struct {
	Line   int
	Record string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "graph: read error at line " + strconv.Itoa(e.Line)
	if e.Record != "" {
		msg = "graph: invalid " + e.Record + " record at line " + strconv.Itoa(e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }
