package observer

import (
	"context"
	"time"

	papyr "github.com/papyrhq/papyr"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedAnswer wraps a papyr.AnswerProvider with OTEL instrumentation.
type ObservedAnswer struct {
	inner papyr.AnswerProvider
	inst  *Instruments
	model string
}

// WrapAnswer returns an instrumented answer extraction provider.
func WrapAnswer(inner papyr.AnswerProvider, model string, inst *Instruments) *ObservedAnswer {
	return &ObservedAnswer{inner: inner, inst: inst, model: model}
}

func (o *ObservedAnswer) Name() string { return o.inner.Name() }

func (o *ObservedAnswer) ExtractAnswer(ctx context.Context, question, contextText string) (papyr.Answer, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "papyr.extract_answer", trace.WithAttributes(
		AttrModel.String(o.model),
		AttrProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	ans, err := o.inner.ExtractAnswer(ctx, question, contextText)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(AttrQueryConfidence.Float64(ans.Score))
		o.inst.QueryConfidence.Record(ctx, ans.Score, metric.WithAttributes(
			AttrModel.String(o.model),
		))
	}

	o.inst.AnswerRequests.Add(ctx, 1, metric.WithAttributes(
		AttrModel.String(o.model),
		AttrProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.AnswerDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrModel.String(o.model),
		AttrProvider.String(o.inner.Name()),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("answer extraction completed"))
	rec.AddAttributes(
		otellog.String("model.name", o.model),
		otellog.String("model.provider", o.inner.Name()),
		otellog.Float64("duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return ans, err
}

var _ papyr.AnswerProvider = (*ObservedAnswer)(nil)
