package callbacks

import (
	"context"
	"log/slog"
	"maps"

	"mercator-hq/policysync/pkg/fetcher"
	"mercator-hq/policysync/pkg/telemetry/logging"
)

// Queuer is the part of the fetching engine used to deliver reports.
type Queuer interface {
	QueueURL(ctx context.Context, url string, cb fetcher.Callback, cfg map[string]any, opts ...fetcher.QueueOption) (string, error)
}

// Reporter posts update reports to callback destinations.
type Reporter struct {
	register *Register
	queue    Queuer
	redactor *logging.Redactor
	logger   *slog.Logger
}

// NewReporter creates a reporter delivering through q.
func NewReporter(register *Register, q Queuer) *Reporter {
	return &Reporter{
		register: register,
		queue:    q,
		redactor: logging.NewRedactor(),
		logger:   slog.Default().With("component", "callbacks.reporter"),
	}
}

// Report queues delivery of report to every registered destination and to
// extra. Delivery happens in the background; failures are logged and never
// returned.
func (r *Reporter) Report(ctx context.Context, report any, extra ...Entry) {
	targets := append(r.register.All(), extra...)
	logger := logging.FromContext(ctx, r.logger)

	for _, target := range targets {
		cfg := deliveryConfig(target.Config, report)

		_, err := r.queue.QueueURL(ctx, target.URL, nil, cfg,
			fetcher.WithErrorCallback(func(_ context.Context, err error, _ *fetcher.FetchEvent) {
				logger.Warn("failed to deliver report",
					"url", r.redactor.RedactString(target.URL),
					"error", err)
			}))
		if err != nil {
			logger.Warn("failed to queue report delivery",
				"url", r.redactor.RedactString(target.URL),
				"config", r.redactor.RedactConfig(target.Config),
				"error", err)
			continue
		}
		logger.Debug("queued report delivery", "url", r.redactor.RedactString(target.URL))
	}
}

// deliveryConfig returns a copy of cfg carrying report as the request body.
// The method defaults to POST.
func deliveryConfig(cfg map[string]any, report any) map[string]any {
	out := make(map[string]any, len(cfg)+2)
	maps.Copy(out, cfg)
	if _, ok := out["method"]; !ok {
		out["method"] = "POST"
	}
	out["data"] = report
	return out
}
