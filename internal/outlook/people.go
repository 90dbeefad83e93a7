package outlook

import (
	"context"
	"fmt"

	"github.com/neboloop/netcapture/internal/browser"
	"github.com/neboloop/netcapture/internal/poll"
)

// OpenPeople opens the People page in a new tab, retrying the tab open with a
// fixed backoff, and signs in again if the page asks for it.
func (r *Run) OpenPeople(ctx context.Context) error {
	t := r.Options.Timing

	err := poll.Retry(ctx, t.PeopleAttempts, t.PeopleBackoff, func(ctx context.Context) error {
		_, err := r.Driver.OpenTab(ctx, r.Options.PeopleURL)
		return err
	}, func(attempt int, err error) {
		r.Logger.Warn("open people page failed, retrying", "attempt", attempt, "error", err)
	})
	if err != nil {
		return interaction(StepOpenPeople, fmt.Errorf("after %d attempts: %w", t.PeopleAttempts, err))
	}
	r.switched = true
	r.Logger.Info("navigated to people page", "url", r.Options.PeopleURL)

	if err := pause(ctx, t.PeopleSettle); err != nil {
		return err
	}
	if r.Options.ReSignIn {
		return r.reSignIn(ctx)
	}
	return nil
}

// reSignIn submits the account email when People bounced to the sign-in form.
// A missing form means the session carried over.
func (r *Run) reSignIn(ctx context.Context) error {
	sel := r.Options.Selectors
	t := r.Options.Timing

	present, err := r.Driver.Present(ctx, sel.EmailInput, t.ReSignInTimeout)
	if err != nil {
		return interaction(StepOpenPeople, err)
	}
	if !present {
		r.Logger.Info("already authenticated on people page")
		return nil
	}

	if _, err := r.Driver.Type(ctx, browser.TypeOptions{
		Selector: sel.EmailInput,
		Text:     r.Credentials.Email,
		Clear:    true,
		Timeout:  t.ElementTimeout,
	}); err != nil {
		return interaction(StepOpenPeople, err)
	}
	if err := r.click(ctx, StepOpenPeople, sel.SubmitButton, t.ElementTimeout); err != nil {
		return err
	}
	r.Logger.Info("signed in again on people page")
	return pause(ctx, t.Settle)
}

// EnsureContact looks for the contact's card and creates the contact when it is
// not listed.
func (r *Run) EnsureContact(ctx context.Context) error {
	sel := r.Options.Selectors
	t := r.Options.Timing
	contact := r.Credentials.Contact

	if err := pause(ctx, t.Settle); err != nil {
		return err
	}
	exists, err := r.Driver.Present(ctx, sel.contactCard(contact), t.ContactCheckTimeout)
	if err != nil {
		return interaction(StepEnsureContact, err)
	}
	if exists {
		r.Logger.Info("contact already exists", "contact", contact)
		return nil
	}

	r.Logger.Info("contact not found, creating it", "contact", contact)
	err = poll.Retry(ctx, t.NewContactAttempts, t.NewContactBackoff, func(ctx context.Context) error {
		if err := pause(ctx, t.Pause); err != nil {
			return err
		}
		_, err := r.Driver.Click(ctx, browser.ClickOptions{Selector: sel.NewContact, Timeout: t.ElementTimeout})
		return err
	}, func(attempt int, err error) {
		r.Logger.Warn("new contact button click failed, retrying", "attempt", attempt, "error", err)
	})
	if err != nil {
		return interaction(StepEnsureContact, fmt.Errorf("new contact button: %w", err))
	}

	if err := r.createContact(ctx); err != nil {
		return err
	}
	return pause(ctx, t.Settle)
}

// createContact fills and saves the new contact form.
func (r *Run) createContact(ctx context.Context) error {
	sel := r.Options.Selectors
	t := r.Options.Timing

	if err := r.click(ctx, StepEnsureContact, sel.RibbonNewContact, t.ContactTimeout); err != nil {
		return err
	}
	if err := pause(ctx, t.Settle); err != nil {
		return err
	}

	first, last := randomName(r.rand)
	fields := []struct {
		selector string
		value    string
	}{
		{sel.FirstName, first},
		{sel.LastName, last},
		{sel.ContactEmail, r.Credentials.Contact},
	}
	for _, f := range fields {
		if err := r.fill(ctx, StepEnsureContact, f.selector, f.value, t.FormKeystrokeDelay); err != nil {
			return err
		}
	}

	if err := pause(ctx, t.Pause); err != nil {
		return err
	}
	if err := r.click(ctx, StepEnsureContact, sel.Save, t.ElementTimeout); err != nil {
		return err
	}
	r.Logger.Info("contact created", "first_name", first, "last_name", last, "contact", r.Credentials.Contact)
	return nil
}

// OpenContact clicks the contact's card.
func (r *Run) OpenContact(ctx context.Context) error {
	t := r.Options.Timing
	card := r.Options.Selectors.contactCard(r.Credentials.Contact)

	if _, err := r.Driver.WaitFor(ctx, browser.WaitOptions{Selector: card, Timeout: t.ContactTimeout}); err != nil {
		return interaction(StepOpenContact, err)
	}
	if err := pause(ctx, t.Pause); err != nil {
		return err
	}
	if err := r.click(ctx, StepOpenContact, card, t.ElementTimeout); err != nil {
		return err
	}
	r.Logger.Info("opened contact", "contact", r.Credentials.Contact)
	return pause(ctx, t.Settle)
}
