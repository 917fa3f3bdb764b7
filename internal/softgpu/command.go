package softgpu

import (
	"fmt"

	"github.com/gogpu/gridframe/config"
	"github.com/gogpu/gridframe/frame"
)

// CommandKind discriminates Command values.
type CommandKind uint8

const (
	CmdDispatch CommandKind = iota
	CmdDraw
)

func (k CommandKind) String() string {
	if k == CmdDispatch {
		return "dispatch"
	}
	return "draw"
}

// Command is one recorded operation.
type Command struct {
	Kind     CommandKind
	Pipeline string

	// WorkGroups is set for dispatches.
	WorkGroups [3]uint32

	// Op and Image are set for draws.
	Op    config.DrawOp
	Image uint32
}

func (c Command) String() string {
	if c.Kind == CmdDispatch {
		return fmt.Sprintf("dispatch %s %dx%dx%d", c.Pipeline, c.WorkGroups[0], c.WorkGroups[1], c.WorkGroups[2])
	}
	return fmt.Sprintf("draw %s %s image %d", c.Pipeline, c.Op, c.Image)
}

// CommandBuffer collects commands between resets. It is owned by the
// recording goroutine; Queue.Submit snapshots its contents.
type CommandBuffer struct {
	kind     frame.QueueKind
	cmds     []Command
	recorded uint64
}

// Kind returns the queue kind the buffer was allocated for.
func (c *CommandBuffer) Kind() frame.QueueKind { return c.kind }

// Dispatch records a compute dispatch.
func (c *CommandBuffer) Dispatch(pipeline string, groups [3]uint32) {
	c.cmds = append(c.cmds, Command{Kind: CmdDispatch, Pipeline: pipeline, WorkGroups: groups})
}

// Draw records a draw into image.
func (c *CommandBuffer) Draw(pipeline string, op config.DrawOp, image uint32) {
	c.cmds = append(c.cmds, Command{Kind: CmdDraw, Pipeline: pipeline, Op: op, Image: image})
}

// Commands returns a copy of the recorded commands.
func (c *CommandBuffer) Commands() []Command {
	return append([]Command(nil), c.cmds...)
}

// Recordings returns how many times the buffer was reset for recording.
func (c *CommandBuffer) Recordings() uint64 { return c.recorded }

// Reset discards recorded commands.
func (c *CommandBuffer) Reset() error {
	c.cmds = c.cmds[:0]
	c.recorded++
	return nil
}

// Destroy releases the recorded commands.
func (c *CommandBuffer) Destroy() { c.cmds = nil }
