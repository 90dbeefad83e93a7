package outlook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neboloop/netcapture/internal/browser"
	"github.com/neboloop/netcapture/internal/failure"
	"github.com/neboloop/netcapture/internal/poll"
)

// OpenLogin loads the sign-in page.
func (r *Run) OpenLogin(ctx context.Context) error {
	res, err := r.Driver.Navigate(ctx, browser.NavigateOptions{URL: r.Options.LoginURL})
	if err != nil {
		return interaction(StepOpenLogin, err)
	}
	r.Logger.Info("navigated to login page", "url", res.URL)
	return pause(ctx, r.Options.Timing.Pause)
}

// EnterEmail types the account email one key at a time and submits it.
func (r *Run) EnterEmail(ctx context.Context) error {
	sel := r.Options.Selectors
	t := r.Options.Timing

	if err := r.fill(ctx, StepEnterEmail, sel.EmailInput, r.Credentials.Email, t.KeystrokeDelay); err != nil {
		return err
	}
	if err := r.click(ctx, StepEnterEmail, sel.SubmitButton, t.ElementTimeout); err != nil {
		return err
	}
	r.Logger.Info("email entered")
	return pause(ctx, t.Settle)
}

// EnterPassword types the password one key at a time and signs in.
func (r *Run) EnterPassword(ctx context.Context) error {
	sel := r.Options.Selectors
	t := r.Options.Timing

	if err := r.fill(ctx, StepEnterPassword, sel.PasswordInput, r.Credentials.Password, t.KeystrokeDelay); err != nil {
		return err
	}
	if err := r.click(ctx, StepEnterPassword, sel.SubmitButton, t.ElementTimeout); err != nil {
		return err
	}
	r.Logger.Info("sign in button clicked")
	return pause(ctx, t.Settle)
}

// StaySignedIn answers Yes on the "Stay signed in?" prompt.
func (r *Run) StaySignedIn(ctx context.Context) error {
	sel := r.Options.Selectors
	t := r.Options.Timing

	if _, err := r.Driver.WaitFor(ctx, browser.WaitOptions{Selector: sel.StaySignedInTitle, Timeout: t.ElementTimeout}); err != nil {
		return interaction(StepStaySignedIn, err)
	}
	r.Logger.Info("stay signed in dialog detected")

	if err := r.click(ctx, StepStaySignedIn, sel.StaySignedInYes, t.ElementTimeout); err != nil {
		return err
	}
	r.Logger.Info("accepted stay signed in")
	return pause(ctx, t.Settle)
}

// WaitForLogin polls the current URL until it lands on one of the mail domains.
func (r *Run) WaitForLogin(ctx context.Context) error {
	var current string
	ok, err := poll.Until(ctx, poll.Options{Timeout: r.Options.Timing.LoginTimeout}, func(ctx context.Context) (bool, error) {
		u, err := r.Driver.CurrentURL(ctx)
		if err != nil {
			r.Logger.Debug("read current url failed", "error", err)
			return false, nil
		}
		current = u
		return onDomain(u, r.Options.LoginDomains), nil
	})
	if err != nil {
		return interaction(StepWaitForLogin, err)
	}
	if !ok {
		return failure.Newf(failure.Interaction, StepWaitForLogin, "no login redirect within %s (last url %q)", r.Options.Timing.LoginTimeout, current)
	}
	r.Logger.Info("logged in", "url", current)
	return pause(ctx, r.Options.Timing.Settle)
}

func onDomain(url string, domains []string) bool {
	for _, d := range domains {
		if d != "" && strings.Contains(url, d) {
			return true
		}
	}
	return false
}

// fill waits for an input, pauses, and types text into it after clearing it.
func (r *Run) fill(ctx context.Context, step, selector, text string, delay time.Duration) error {
	t := r.Options.Timing
	if _, err := r.Driver.WaitFor(ctx, browser.WaitOptions{Selector: selector, Timeout: t.ElementTimeout}); err != nil {
		return interaction(step, err)
	}
	if err := pause(ctx, t.Pause); err != nil {
		return err
	}
	_, err := r.Driver.Type(ctx, browser.TypeOptions{
		Selector: selector,
		Text:     text,
		Delay:    delay,
		Clear:    true,
		Timeout:  t.ElementTimeout,
	})
	if err != nil {
		return interaction(step, fmt.Errorf("type into %s: %w", selector, err))
	}
	return nil
}

func (r *Run) click(ctx context.Context, step, selector string, timeout time.Duration) error {
	if _, err := r.Driver.Click(ctx, browser.ClickOptions{Selector: selector, Timeout: timeout}); err != nil {
		return interaction(step, err)
	}
	return nil
}
