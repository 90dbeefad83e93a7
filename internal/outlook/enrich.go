package outlook

import (
	"context"

	"github.com/neboloop/netcapture/internal/failure"
	"github.com/neboloop/netcapture/internal/store"
)

// CaptureEnrichment opens the contact's LinkedIn tab and waits for the profile
// enrichment request. On a match the request is stored against the contact. When
// the window closes without one, it returns a NoMatch failure.
func (r *Run) CaptureEnrichment(ctx context.Context) error {
	sel := r.Options.Selectors
	t := r.Options.Timing

	// Everything already queued belongs to earlier pages. Audit it, then start the
	// window empty.
	flushed, err := r.Buffer.Collect(ctx)
	if err != nil {
		r.Logger.Warn("performance log drain failed", "error", err)
	}
	r.Logger.Info("requests captured before the capture window", "flushed", len(flushed), "window", r.Buffer.Len())
	r.Buffer.Reset()

	if err := r.Driver.EnableNetwork(ctx); err != nil {
		return interaction(StepCaptureEnrichment, err)
	}
	if err := r.click(ctx, StepCaptureEnrichment, sel.LinkedInTab, t.ElementTimeout); err != nil {
		return err
	}
	r.Logger.Info("linkedin tab clicked, waiting for enrichment request", "target", r.Options.Target)

	match, err := r.Buffer.PollForMatch(ctx, r.Options.Target, t.Capture)
	if err != nil {
		return interaction(StepCaptureEnrichment, err)
	}
	r.Logger.Info("capture window closed", "decoded", r.Buffer.Len())
	if match == nil {
		return failure.Newf(failure.NoMatch, StepCaptureEnrichment, "no request containing %q", r.Options.Target)
	}

	rec := store.FromRequest(r.ID, r.Credentials.Contact, *match, r.now())
	if err := r.Store.Append(ctx, rec); err != nil {
		if failure.KindOf(err) == "" {
			err = failure.New(failure.Persistence, StepCaptureEnrichment, err)
		}
		return err
	}
	r.record = &rec
	r.Logger.Info("enrichment request saved", "url", rec.URL, "headers", len(rec.Headers))
	return nil
}
