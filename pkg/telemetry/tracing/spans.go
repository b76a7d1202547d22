package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on policysync spans.
const (
	AttrUpdateID = attribute.Key("policysync.update_id")
	AttrReason   = attribute.Key("policysync.reason")
	AttrEntries  = attribute.Key("policysync.entries")
	AttrURL      = attribute.Key("policysync.url")
	AttrPath     = attribute.Key("policysync.path")
	AttrTopic    = attribute.Key("policysync.topic")
	AttrOutcome  = attribute.Key("policysync.outcome")
)

// End records err on span, sets its status and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
