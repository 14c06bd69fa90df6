// Package gputest provides a recording hal device backed by the noop
// backend for tests of code that records render passes.
package gputest

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// ErrInjected is returned by resource creation that a test made fail.
var ErrInjected = errors.New("gputest: injected failure")

// Command is one recorded render pass call.
type Command struct {
	Pass string
	Op   string
	// Pipeline is the label of the pipeline bound by SetPipeline.
	Pipeline string
	Args     []float64
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Op)
	if c.Pipeline != "" {
		b.WriteString(" " + c.Pipeline)
	}
	for _, a := range c.Args {
		fmt.Fprintf(&b, " %g", a)
	}
	return b.String()
}

// Pipeline wraps a noop render pipeline and keeps its descriptor.
type Pipeline struct {
	hal.RenderPipeline
	Label        string
	DepthStencil *hal.DepthStencilState
	Targets      []gputypes.ColorTargetState
	Topology     gputypes.PrimitiveTopology
}

// Device is a noop device that records passes and created pipelines and
// can fail chosen resource creation.
type Device struct {
	hal.Device

	failShaders   []string
	failPipelines []string

	// Passes holds the label of every begun render pass, in order.
	Passes []string
	// Commands holds every recorded pass call, in order.
	Commands []Command
	// Pipelines holds every created pipeline, in order.
	Pipelines []*Pipeline
	// ShaderModules counts successful shader module creations.
	ShaderModules int
	// Submits counts queue submissions.
	Submits int
}

// NewDevice opens a noop device and registers its cleanup with t.
func NewDevice(t testing.TB) (*Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		t.Fatal("no noop adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	d := &Device{Device: open.Device}
	return d, &queue{Queue: open.Queue, device: d}
}

// FailShader makes shader module creation fail for labels containing s.
func (d *Device) FailShader(s string) { d.failShaders = append(d.failShaders, s) }

// FailPipeline makes pipeline creation fail for labels containing s.
func (d *Device) FailPipeline(s string) { d.failPipelines = append(d.failPipelines, s) }

// Reset forgets recorded passes and commands.
func (d *Device) Reset() {
	d.Passes = nil
	d.Commands = nil
}

// Ops returns the recorded commands of pass with op in ops, formatted.
// An empty pass matches every pass.
func (d *Device) Ops(pass string, ops ...string) []string {
	var out []string
	for _, c := range d.Commands {
		if pass != "" && c.Pass != pass {
			continue
		}
		if len(ops) > 0 && !slices.Contains(ops, c.Op) {
			continue
		}
		out = append(out, c.String())
	}
	return out
}

// Count returns the number of recorded commands with op.
func (d *Device) Count(op string) int {
	n := 0
	for _, c := range d.Commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Draws returns the pipeline label bound for every draw, in order.
func (d *Device) Draws() []string {
	var out []string
	var bound string
	for _, c := range d.Commands {
		switch c.Op {
		case "SetPipeline":
			bound = c.Pipeline
		case "Draw", "DrawIndexed":
			out = append(out, bound)
		}
	}
	return out
}

func matches(patterns []string, label string) bool {
	for _, p := range patterns {
		if strings.Contains(label, p) {
			return true
		}
	}
	return false
}

// CreateShaderModule fails for labels registered with FailShader.
func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	if matches(d.failShaders, desc.Label) {
		return nil, ErrInjected
	}
	m, err := d.Device.CreateShaderModule(desc)
	if err == nil {
		d.ShaderModules++
	}
	return m, err
}

// CreateRenderPipeline records the descriptor and wraps the pipeline.
func (d *Device) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	if matches(d.failPipelines, desc.Label) {
		return nil, ErrInjected
	}
	rp, err := d.Device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{RenderPipeline: rp, Label: desc.Label, Topology: desc.Primitive.Topology}
	if desc.DepthStencil != nil {
		ds := *desc.DepthStencil
		p.DepthStencil = &ds
	}
	if desc.Fragment != nil {
		p.Targets = append(p.Targets, desc.Fragment.Targets...)
	}
	d.Pipelines = append(d.Pipelines, p)
	return p, nil
}

// CreateCommandEncoder returns an encoder that records its passes.
func (d *Device) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &encoder{CommandEncoder: enc, device: d}, nil
}

type queue struct {
	hal.Queue
	device *Device
}

func (q *queue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	q.device.Submits++
	return q.Queue.Submit(cmds)
}

type encoder struct {
	hal.CommandEncoder
	device *Device
}

func (e *encoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.device.Passes = append(e.device.Passes, desc.Label)
	return &pass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), device: e.device, label: desc.Label}
}

type pass struct {
	hal.RenderPassEncoder
	device *Device
	label  string
}

func (p *pass) record(op string, args ...float64) {
	p.device.Commands = append(p.device.Commands, Command{Pass: p.label, Op: op, Args: args})
}

func (p *pass) End() {
	p.record("End")
	p.RenderPassEncoder.End()
}

func (p *pass) SetPipeline(rp hal.RenderPipeline) {
	c := Command{Pass: p.label, Op: "SetPipeline"}
	if w, ok := rp.(*Pipeline); ok {
		c.Pipeline = w.Label
		rp = w.RenderPipeline
	}
	p.device.Commands = append(p.device.Commands, c)
	p.RenderPassEncoder.SetPipeline(rp)
}

func (p *pass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	args := []float64{float64(index)}
	for _, o := range offsets {
		args = append(args, float64(o))
	}
	p.record("SetBindGroup", args...)
	p.RenderPassEncoder.SetBindGroup(index, group, offsets)
}

func (p *pass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.record("SetViewport", float64(minDepth), float64(maxDepth))
	p.RenderPassEncoder.SetViewport(x, y, width, height, minDepth, maxDepth)
}

func (p *pass) SetScissorRect(x, y, width, height uint32) {
	p.record("SetScissorRect", float64(width), float64(height))
	p.RenderPassEncoder.SetScissorRect(x, y, width, height)
}

func (p *pass) SetStencilReference(ref uint32) {
	p.record("SetStencilReference", float64(ref))
	p.RenderPassEncoder.SetStencilReference(ref)
}

func (p *pass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.record("Draw", float64(vertexCount))
	p.RenderPassEncoder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *pass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.record("DrawIndexed", float64(indexCount), float64(firstIndex), float64(baseVertex))
	p.RenderPassEncoder.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}
