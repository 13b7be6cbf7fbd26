// Package pipeline runs one receipt image through decode, compression,
// storage, extraction, normalisation, verification and persistence, and
// runs batches of images concurrently.
package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/dvloznov/tipenter/internal/extraction"
)

// PipelineStep is a single step of the per-image pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// State is shared across the steps for one image.
type State struct {
	BatchID  string
	Position int
	Image    extraction.Image

	Decoded    image.Image
	Compressed []byte
	ImageURI   string
	ScanRunID  string
	Result     *extraction.Result
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs all steps sequentially, stopping at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}
