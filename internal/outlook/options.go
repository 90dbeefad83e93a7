// Package outlook is the scripted webmail workflow: sign in, open People, make
// sure the contact exists, open its LinkedIn panel and capture the enrichment
// request the panel sends.
package outlook

import (
	"strings"
	"time"

	"github.com/neboloop/netcapture/internal/poll"
)

// contactPlaceholder is replaced with the contact email in Selectors.ContactCard.
const contactPlaceholder = "{email}"

// Credentials are the account to sign in with and the contact to look up. They
// come from the environment only.
type Credentials struct {
	Email    string
	Password string
	Contact  string
}

// Options configures the workflow. Config files are layered over DefaultOptions.
type Options struct {
	LoginURL  string `yaml:"loginUrl"`
	PeopleURL string `yaml:"peopleUrl"`

	// LoginDomains are URL fragments that mean the sign-in finished.
	LoginDomains []string `yaml:"loginDomains"`

	// Target is the URL substring identifying the enrichment request.
	Target string `yaml:"target"`

	// ReSignIn types the account email again if People shows a sign-in form.
	ReSignIn bool `yaml:"reSignIn"`

	Selectors Selectors `yaml:"selectors"`
	Timing    Timing    `yaml:"timing"`
}

type Selectors struct {
	EmailInput        string `yaml:"emailInput"`
	PasswordInput     string `yaml:"passwordInput"`
	SubmitButton      string `yaml:"submitButton"`
	StaySignedInTitle string `yaml:"staySignedInTitle"`
	StaySignedInYes   string `yaml:"staySignedInYes"`
	ContactCard       string `yaml:"contactCard"`
	NewContact        string `yaml:"newContact"`
	RibbonNewContact  string `yaml:"ribbonNewContact"`
	FirstName         string `yaml:"firstName"`
	LastName          string `yaml:"lastName"`
	ContactEmail      string `yaml:"contactEmail"`
	Save              string `yaml:"save"`
	LinkedInTab       string `yaml:"linkedInTab"`
}

// Timing holds every wait in the workflow. The pauses stand in for the human
// pacing the sign-in pages expect.
type Timing struct {
	// Pause is the short beat before typing into or clicking a located element.
	Pause time.Duration `yaml:"pause"`
	// Settle follows a submit or a page transition.
	Settle time.Duration `yaml:"settle"`
	// PeopleSettle follows opening the People page.
	PeopleSettle time.Duration `yaml:"peopleSettle"`
	// Linger keeps the browser open after the run before closing it.
	Linger time.Duration `yaml:"linger"`

	KeystrokeDelay     time.Duration `yaml:"keystrokeDelay"`
	FormKeystrokeDelay time.Duration `yaml:"formKeystrokeDelay"`

	ElementTimeout      time.Duration `yaml:"elementTimeout"`
	LoginTimeout        time.Duration `yaml:"loginTimeout"`
	ContactTimeout      time.Duration `yaml:"contactTimeout"`
	ContactCheckTimeout time.Duration `yaml:"contactCheckTimeout"`
	ReSignInTimeout     time.Duration `yaml:"reSignInTimeout"`

	PeopleAttempts     int           `yaml:"peopleAttempts"`
	PeopleBackoff      time.Duration `yaml:"peopleBackoff"`
	NewContactAttempts int           `yaml:"newContactAttempts"`
	NewContactBackoff  time.Duration `yaml:"newContactBackoff"`

	// Capture bounds the wait for the enrichment request.
	Capture poll.Options `yaml:"capture"`
}

// DefaultOptions returns the workflow as it runs against Microsoft 365.
func DefaultOptions() Options {
	return Options{
		LoginURL:  "https://login.microsoftonline.com/",
		PeopleURL: "https://outlook.office.com/people/",
		LoginDomains: []string{
			"m365.cloud.microsoft",
			"www.office.com",
			"outlook.office.com",
			"outlook.office365.com",
		},
		Target:   "linkedin/profiles/full",
		ReSignIn: true,
		Selectors: Selectors{
			EmailInput:        `input[name="loginfmt"]`,
			PasswordInput:     `input[name="passwd"]`,
			SubmitButton:      `#idSIButton9`,
			StaySignedInTitle: `#kmsiTitle`,
			StaySignedInYes:   `button[type="submit"][aria-label="Yes"][id="acceptButton"]`,
			ContactCard:       `div[aria-label*='` + contactPlaceholder + `']`,
			NewContact:        `[data-automationid="splitbuttonprimary"]`,
			RibbonNewContact:  `button[data-automation-type="RibbonSplitButton"][aria-label="New contact"]`,
			FirstName:         `input[data-automation="Name.firstName"]`,
			LastName:          `input[data-automation="Name.lastName"]`,
			ContactEmail:      `input[data-automation="Email.email1"]`,
			Save:              `button[data-automation="LPESave"]`,
			LinkedInTab:       `button[name='LinkedIn'][role='tab']`,
		},
		Timing: Timing{
			Pause:               1500 * time.Millisecond,
			Settle:              3 * time.Second,
			PeopleSettle:        10 * time.Second,
			KeystrokeDelay:      500 * time.Millisecond,
			FormKeystrokeDelay:  120 * time.Millisecond,
			ElementTimeout:      10 * time.Second,
			LoginTimeout:        20 * time.Second,
			ContactTimeout:      15 * time.Second,
			ContactCheckTimeout: 10 * time.Second,
			ReSignInTimeout:     5 * time.Second,
			PeopleAttempts:      3,
			PeopleBackoff:       3 * time.Second,
			NewContactAttempts:  3,
			NewContactBackoff:   5 * time.Second,
			Capture: poll.Options{
				Timeout:  poll.DefaultTimeout,
				Interval: poll.DefaultInterval,
			},
		},
	}
}

// contactCard is the selector for the contact's card in the People list.
func (s Selectors) contactCard(email string) string {
	return strings.ReplaceAll(s.ContactCard, contactPlaceholder, email)
}
