// Package orchestrator converts many files concurrently with a bounded number
// of workers and a per-file timeout.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/valpere/vorewrite/internal/refine"
)

// Converter converts one file. *refine.Controller implements it.
type Converter interface {
	ConvertFile(ctx context.Context, source, truth string) (*refine.FileResult, error)
}

type OrchestratorConfig struct {
	// Workers bounds concurrent conversions. Zero means 1.
	Workers int
	// Timeout bounds each job. Zero means no per-job limit.
	Timeout time.Duration
}

// Job is one file to convert.
type Job struct {
	ID          string
	Path        string
	Source      string
	GroundTruth string
}

type JobResult struct {
	Job      Job
	File     *refine.FileResult
	Err      error
	Duration time.Duration
}

// OrchestratorResult holds job results in submission order.
type OrchestratorResult struct {
	Results   []JobResult
	Errors    []error
	Succeeded int
	Failed    int
}

type Orchestrator struct {
	converter Converter
	config    OrchestratorConfig
}

func New(converter Converter, config OrchestratorConfig) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Orchestrator{
		converter: converter,
		config:    config,
	}
}

// Execute runs every job and waits for all of them. onDone, when set, is
// called from the collecting goroutine once per finished job, in completion
// order. Jobs not started before ctx ends fail with ctx's error.
func (o *Orchestrator) Execute(ctx context.Context, jobs []Job, onDone func(JobResult)) *OrchestratorResult {
	result := &OrchestratorResult{
		Results: make([]JobResult, len(jobs)),
		Errors:  make([]error, 0),
	}

	type resultChan struct {
		index int
		res   JobResult
	}

	results := make(chan resultChan, len(jobs))
	sem := make(chan struct{}, o.config.Workers)

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(index int, job Job) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- resultChan{index: index, res: JobResult{Job: job, Err: ctx.Err()}}
				return
			}

			results <- resultChan{index: index, res: o.run(ctx, job)}
		}(i, job)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for rc := range results {
		result.Results[rc.index] = rc.res
		if rc.res.Err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", rc.res.Job.Path, rc.res.Err))
			result.Failed++
		} else {
			result.Succeeded++
		}
		if onDone != nil {
			onDone(rc.res)
		}
	}

	return result
}

func (o *Orchestrator) run(ctx context.Context, job Job) JobResult {
	jobCtx := ctx
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	file, err := o.converter.ConvertFile(jobCtx, job.Source, job.GroundTruth)
	res := JobResult{Job: job, File: file, Err: err, Duration: time.Since(start)}

	ev := log.Debug().Str("path", job.Path).Dur("duration", res.Duration)
	if err != nil {
		ev.Err(err).Msg("File conversion failed")
	} else {
		ev.Int("units", file.Summary.Total).Int("succeeded", file.Summary.Succeeded).Msg("File converted")
	}
	return res
}
