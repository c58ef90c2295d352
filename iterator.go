package graphview

import "context"

// RecordIterator is a lazy, pull-based cursor over records produced by a
// step operator. Callers must call Close when done.
//
// Usage:
//
//	it, err := step.Open(ctx, source)
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//	    rec := it.Record()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type RecordIterator interface {
	// Next advances to the next record. Returns false when the cursor is
	// exhausted or an error occurred.
	Next() bool
	// Record returns the current record. Only valid after Next returns true.
	// A nil record is allowed and is skipped by path search.
	Record() Record
	// Err returns the first error encountered during iteration.
	Err() error
	// Close releases resources held by the cursor.
	Close()
}

// StepOperator expands one hop of a traversal. Open binds source as the
// operator's constant input and returns a fresh cursor over its output;
// calling Open again is the reset.
type StepOperator interface {
	Open(ctx context.Context, source Record) (RecordIterator, error)
}

// StepFunc adapts a function to StepOperator.
type StepFunc func(ctx context.Context, source Record) (RecordIterator, error)

// Open calls f.
func (f StepFunc) Open(ctx context.Context, source Record) (RecordIterator, error) {
	return f(ctx, source)
}

// ---------------------------------------------------------------------------
// sliceIterator wraps materialized records as a RecordIterator.
// ---------------------------------------------------------------------------

type sliceIterator struct {
	records []Record
	idx     int
}

// NewSliceIterator returns a cursor over already materialized records.
func NewSliceIterator(records []Record) RecordIterator {
	return &sliceIterator{records: records, idx: -1}
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.records)
}

func (it *sliceIterator) Record() Record {
	if it.idx < 0 || it.idx >= len(it.records) {
		return nil
	}
	return it.records[it.idx]
}

func (it *sliceIterator) Err() error { return nil }
func (it *sliceIterator) Close()     {}

// ---------------------------------------------------------------------------
// Polling operators: reset / has-more / next over a constant source slot.
// ---------------------------------------------------------------------------

// ConstantSource is the caller-settable input slot of a polling operator.
// The operator reads its current input from the slot on every reset.
type ConstantSource struct {
	record Record
}

// Set replaces the record held by the slot.
func (s *ConstantSource) Set(r Record) { s.record = r }

// Get returns the record held by the slot.
func (s *ConstantSource) Get() Record { return s.record }

// PollingOperator is the stateful operator style used by row-at-a-time
// pipelines: reset, then poll until HasMore reports false.
type PollingOperator interface {
	ResetState()
	HasMore() bool
	// Next produces the next record. A nil record with a nil error means
	// "nothing this round" and is skipped.
	Next() (Record, error)
}

// Polling adapts a polling operator that reads from src into a StepOperator.
// Each Open writes the source into the slot and resets the operator.
func Polling(op PollingOperator, src *ConstantSource) StepOperator {
	return StepFunc(func(ctx context.Context, source Record) (RecordIterator, error) {
		src.Set(source)
		op.ResetState()
		return &pollingIterator{ctx: ctx, op: op}, nil
	})
}

type pollingIterator struct {
	ctx context.Context
	op  PollingOperator
	cur Record
	err error
}

func (it *pollingIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if !it.op.HasMore() {
		return false
	}
	rec, err := it.op.Next()
	if err != nil {
		it.err = err
		return false
	}
	it.cur = rec
	return true
}

func (it *pollingIterator) Record() Record { return it.cur }
func (it *pollingIterator) Err() error     { return it.err }
func (it *pollingIterator) Close()         {}
