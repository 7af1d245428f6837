package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/itchyny/gojq"
)

// queryRunner compiles and runs jq programs with a per-run timeout and
// an input size ceiling. Compiled programs are cached by source text;
// workflows run the same handful of queries on every iteration.
type queryRunner struct {
	timeout time.Duration
	maxSize int64

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func newQueryRunner(timeout time.Duration, maxSize int64) *queryRunner {
	return &queryRunner{
		timeout: timeout,
		maxSize: maxSize,
		cache:   make(map[string]*gojq.Code),
	}
}

// run executes src against input. Zero outputs yield nil, one output
// yields the value, several yield a slice.
func (r *queryRunner) run(ctx context.Context, src string, input any) (any, error) {
	if err := r.checkSize(input); err != nil {
		return nil, err
	}
	code, err := r.compile(src)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var results []any
	iter := code.RunWithContext(runCtx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if runCtx.Err() != nil {
				return nil, fmt.Errorf("query timed out after %v", r.timeout)
			}
			return nil, fmt.Errorf("query failed: %w", err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (r *queryRunner) compile(src string) (*gojq.Code, error) {
	r.mu.RLock()
	code, ok := r.cache[src]
	r.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", src, err)
	}
	code, err = gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("query %q does not compile: %w", src, err)
	}

	r.mu.Lock()
	r.cache[src] = code
	r.mu.Unlock()
	return code, nil
}

func (r *queryRunner) checkSize(input any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("operand is not serializable: %w", err)
	}
	if int64(len(raw)) > r.maxSize {
		return fmt.Errorf("operand size %d bytes exceeds maximum %d", len(raw), r.maxSize)
	}
	return nil
}
