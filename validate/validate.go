// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package validate maps the findings of a script model onto the lines of
// the documents they came from, and reports them as markers.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"mvdan.cc/bashmodel/script"
)

// Document is a named script text to validate.
type Document struct {
	Resource string
	Text     string

	// Lines resolves offsets in Text to lines. If nil, a TextLines over
	// Text is used.
	Lines LineResolver
}

// Marker is a finding placed on a line of a resource.
type Marker struct {
	Resource string
	Line     int
	Start    int
	End      int
	Severity script.Severity
	Message  string
}

func (m Marker) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", m.Resource, m.Line, m.Severity, m.Message)
}

// Sink receives the markers produced by a Validator. AddMarker may be
// called from multiple goroutines by ValidateAll.
type Sink interface {
	AddMarker(Marker)
}

// SinkFunc is a function implementing Sink.
type SinkFunc func(Marker)

func (f SinkFunc) AddMarker(m Marker) { f(m) }

// Collector is a Sink keeping markers in memory. It is safe for concurrent
// use.
type Collector struct {
	mu      sync.Mutex
	markers []Marker
}

func (c *Collector) AddMarker(m Marker) {
	c.mu.Lock()
	c.markers = append(c.markers, m)
	c.mu.Unlock()
}

// Markers returns a copy of the collected markers, sorted by resource and
// then by offset.
func (c *Collector) Markers() []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := make([]Marker, len(c.markers))
	copy(ms, c.markers)
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Resource != ms[j].Resource {
			return ms[i].Resource < ms[j].Resource
		}
		return ms[i].Start < ms[j].Start
	})
	return ms
}

// Reset drops all collected markers.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.markers = nil
	c.mu.Unlock()
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used to report line lookup failures. By
// default, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// WithConcurrency bounds the number of documents ValidateAll builds at
// once. Zero or less means no limit.
func WithConcurrency(n int) Option {
	return func(v *Validator) { v.concurrency = n }
}

// Validator builds script models for documents and reports their errors
// to a Sink.
type Validator struct {
	builder     *script.Builder
	logger      *slog.Logger
	concurrency int
}

// New returns a Validator using builder. A nil builder means
// script.NewBuilder with all validations enabled.
func New(builder *script.Builder, options ...Option) *Validator {
	if builder == nil {
		builder = script.NewBuilder()
	}
	v := &Validator{builder: builder}
	for _, opt := range options {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// Validate builds the model of doc and adds a marker to sink for each of
// its errors. The returned error is only non-nil if the document could not
// be built at all.
func (v *Validator) Validate(doc Document, sink Sink) error {
	_, err := v.validate(doc, sink)
	return err
}

// ValidateModel is like Validate, but also returns the built model.
func (v *Validator) ValidateModel(doc Document, sink Sink) (*script.Model, error) {
	return v.validate(doc, sink)
}

func (v *Validator) validate(doc Document, sink Sink) (*script.Model, error) {
	m, err := v.builder.Build(doc.Text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", doc.Resource, err)
	}
	lines := doc.Lines
	if lines == nil {
		lines = NewTextLines(doc.Text)
	}
	for _, marker := range v.Markers(doc.Resource, m, lines) {
		sink.AddMarker(marker)
	}
	return m, nil
}

// Markers maps the errors of m to markers on resource. An error whose
// offset cannot be resolved is placed on line 0, and the failure is
// logged.
func (v *Validator) Markers(resource string, m *script.Model, lines LineResolver) []Marker {
	if !m.HasErrors() {
		return nil
	}
	markers := make([]Marker, 0, len(m.Errors))
	for _, e := range m.Errors {
		line, err := lines.LineOfOffset(e.Start)
		if err != nil {
			v.logger.Error("cannot get line offset",
				"resource", resource, "offset", e.Start, "error", err)
			line = 0
		}
		markers = append(markers, Marker{
			Resource: resource,
			Line:     line,
			Start:    e.Start,
			End:      e.End,
			Severity: e.Severity,
			Message:  e.Message,
		})
	}
	return markers
}

// ValidateAll validates docs concurrently, adding all markers to sink.
// Documents which cannot be built do not stop the others; their errors are
// joined in the result. If ctx is cancelled, documents not yet started are
// skipped and the context's error is returned.
func (v *Validator) ValidateAll(ctx context.Context, docs []Document, sink Sink) error {
	g, gctx := errgroup.WithContext(ctx)
	if v.concurrency > 0 {
		g.SetLimit(v.concurrency)
	}
	errs := make([]error, len(docs))
	for i, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		i, doc := i, doc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			errs[i] = v.Validate(doc, sink)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
