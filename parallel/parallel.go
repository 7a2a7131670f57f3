package parallel

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxReported caps how many individual failures are spelled out in Error().
const maxReported = 5

// Error aggregates the failures of a fan-out.
type Error struct {
	Total  int
	Errors []error
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d nodes failed", len(e.Errors), e.Total)

	for i, err := range e.Errors {
		if i == maxReported {
			fmt.Fprintf(&sb, "; and %d more", len(e.Errors)-maxReported)
			break
		}
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}

	return sb.String()
}

func (e *Error) Unwrap() []error {
	return e.Errors
}

type Options struct {
	// Limit caps concurrently running tasks. Zero or less means one goroutine per item.
	Limit int
}

// Run calls fn for every item concurrently and waits for all of them, even after a failure.
// Failures are collected into an *Error, in item order.
func Run[T any](ctx context.Context, items []T, fn func(ctx context.Context, item T) error, opts ...Options) error {
	_, err := Map(ctx, items, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, item)
	}, opts...)
	return err
}

// Map is like Run but also returns the result of every item, in item order.
// Results of failed items are zero values.
func Map[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error), opts ...Options) ([]R, error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))

	var group errgroup.Group
	for _, o := range opts {
		if o.Limit > 0 {
			group.SetLimit(o.Limit)
		}
	}

	for i, item := range items {
		i, item := i, item
		group.Go(func() error {
			// Siblings keep running: a failure is recorded, never returned to the group
			results[i], errs[i] = fn(ctx, item)
			return nil
		})
	}
	_ = group.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return results, &Error{Total: len(items), Errors: failed}
	}

	return results, nil
}
