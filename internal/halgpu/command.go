package halgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gridframe/frame"
	"github.com/gogpu/wgpu/hal"
)

// errNotRecording is returned when a command buffer is submitted or
// recorded into without a Reset.
var errNotRecording = errors.New("halgpu: command buffer is not recording")

// CommandBuffer implements frame.CommandBuffer. Reset opens a new HAL
// command encoder; submission ends it. The finished HAL command buffer is
// kept until the next Reset, which the frame protocol only issues after the
// slot fence has been observed signaled.
type CommandBuffer struct {
	device hal.Device
	kind   frame.QueueKind

	encoder  hal.CommandEncoder
	finished hal.CommandBuffer
}

// Reset implements frame.CommandBuffer.
func (c *CommandBuffer) Reset() error {
	c.release()
	label := c.kind.String() + "_frame"
	enc, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("halgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	c.encoder = enc
	return nil
}

// Encoder returns the open encoder, or nil when the buffer is not
// recording.
func (c *CommandBuffer) Encoder() hal.CommandEncoder { return c.encoder }

func (c *CommandBuffer) finish() (hal.CommandBuffer, error) {
	if c.encoder == nil {
		return nil, errNotRecording
	}
	raw, err := c.encoder.EndEncoding()
	c.encoder = nil
	if err != nil {
		return nil, fmt.Errorf("halgpu: end encoding: %w", err)
	}
	c.finished = raw
	return raw, nil
}

func (c *CommandBuffer) release() {
	if c.encoder != nil {
		c.encoder.DiscardEncoding()
		c.encoder = nil
	}
	if c.finished != nil {
		c.device.FreeCommandBuffer(c.finished)
		c.finished = nil
	}
}

// Destroy implements frame.CommandBuffer.
func (c *CommandBuffer) Destroy() { c.release() }
