// Package idgen generates collision-resistant identifiers for traces and spans.
package idgen

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	TracePrefix = "trace_"
	SpanPrefix  = "span_"
)

// newRandom is swapped in tests to exercise the fallback path.
var newRandom = uuid.NewRandom

// NewTraceID returns a new trace/interaction identifier.
func NewTraceID() string {
	return generate(TracePrefix)
}

// NewSpanID returns a new span identifier.
func NewSpanID() string {
	return generate(SpanPrefix)
}

func generate(prefix string) string {
	id, err := newRandom()
	if err != nil {
		// Secure source unavailable: timestamp plus pseudo-random suffix
		return prefix + strconv.FormatInt(time.Now().UnixMilli(), 36) + "_" + strconv.FormatUint(rand.Uint64(), 36)
	}
	return prefix + id.String()
}
