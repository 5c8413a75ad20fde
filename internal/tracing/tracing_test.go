package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMockTracer(t *testing.T) *mocktracer.MockTracer {
	t.Helper()
	prev := opentracing.GlobalTracer()
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	t.Cleanup(func() { opentracing.SetGlobalTracer(prev) })
	return tracer
}

func TestStartSpanNestsUnderParent(t *testing.T) {
	tracer := useMockTracer(t)

	parent, ctx := StartSpan(context.Background(), "export.job")
	child, _ := StartSpan(ctx, "export.merging")
	SetTag(child, "job_id", "job-1")
	FinishSpan(child)
	FinishSpan(parent)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "export.merging", spans[0].OperationName)
	assert.Equal(t, "job-1", spans[0].Tag("job_id"))
	assert.Equal(t, spans[1].SpanContext.SpanID, spans[0].ParentID)
}

func TestLogError(t *testing.T) {
	tracer := useMockTracer(t)

	span, _ := StartSpan(context.Background(), "export.encoding")
	LogError(span, errors.New("encoder crashed"))
	LogError(span, nil)
	FinishSpan(span)

	finished := tracer.FinishedSpans()
	require.Len(t, finished, 1)
	assert.Equal(t, true, finished[0].Tag("error"))
	require.Len(t, finished[0].Logs(), 1)
	assert.Equal(t, "encoder crashed", finished[0].Logs()[0].Fields[0].ValueString)
}

func TestNilSpanHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		FinishSpan(nil)
		LogError(nil, errors.New("x"))
		SetTag(nil, "k", "v")
	})
}

func TestSetupDisabled(t *testing.T) {
	closer, err := Setup(false, "vedit", "")
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}
