// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"k8s.io/utils/clock"

	"github.com/jeranaias/sessionkeep/internal/session"
	"github.com/jeranaias/sessionkeep/internal/ui/components"
	"github.com/jeranaias/sessionkeep/internal/ui/styles"
)

// Demo form keys. Snapshots are stored under these names.
const (
	FirstFormKey  = "form1"
	SecondFormKey = "form2"
)

// sampleFields are the fields of both demo forms.
func sampleFields() []components.FieldSpec {
	return []components.FieldSpec{
		{Name: "name", Label: "Name", Placeholder: "Enter your name", CharLimit: 80,
			Validators: []components.Validator{components.Required}},
		{Name: "email", Label: "Email", Placeholder: "Enter your email", CharLimit: 120,
			Validators: []components.Validator{components.Required, components.Email}},
		{Name: "phone", Label: "Phone", Placeholder: "Enter your phone number", CharLimit: 17,
			Validators: []components.Validator{components.Phone}},
		{Name: "comments", Label: "Comments", Placeholder: "Enter your comments", CharLimit: 2000},
		{Name: "agreement", Label: "I agree to the terms and conditions", Kind: components.CheckboxField,
			Validators: []components.Validator{components.Accepted}},
	}
}

// Config configures a shell model.
type Config struct {
	Session *session.Session

	// Theme defaults to styles.NewTheme().
	Theme *styles.Theme

	// Clock drives the warning countdown. Defaults to the real clock.
	Clock clock.PassiveClock

	// Context bounds re-authentication and sign-out calls.
	Context context.Context

	// AutoSave is the pause after the last edit before a form is saved.
	// Zero disables saving on edit.
	AutoSave time.Duration
}

// Model is the Bubble Tea model for one session.
type Model struct {
	sess  *session.Session
	theme *styles.Theme
	clock clock.PassiveClock
	ctx   context.Context
	keys  KeyMap

	autoSave time.Duration

	header  *components.Header
	status  *components.StatusBar
	overlay components.SessionTimeoutOverlay

	forms []*components.Form
	focus int

	bridge *bridge

	warningDeadline time.Time
	submitting      bool

	width  int
	height int
}

// New builds the model, registers its forms with the session registry and
// restores any snapshot left for them.
func New(cfg Config) (Model, error) {
	if cfg.Session == nil {
		return Model{}, errors.New("shell: session is required")
	}
	if cfg.Theme == nil {
		cfg.Theme = styles.NewTheme()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}

	m := Model{
		sess:     cfg.Session,
		theme:    cfg.Theme,
		clock:    cfg.Clock,
		ctx:      cfg.Context,
		keys:     DefaultKeyMap(),
		autoSave: cfg.AutoSave,
		header:   components.NewHeader(cfg.Theme),
		status:   components.NewStatusBar(cfg.Theme),
		overlay:  components.NewSessionTimeoutOverlay(),
		forms: []*components.Form{
			components.NewForm(FirstFormKey, "Form 1", cfg.Theme, sampleFields()...),
			components.NewForm(SecondFormKey, "Form 2", cfg.Theme, sampleFields()...),
		},
	}
	m.header.Subtitle = cfg.Session.ID()

	reg := cfg.Session.Registry()
	for _, f := range m.forms {
		if err := reg.Register(f.Key, f); err != nil {
			return Model{}, fmt.Errorf("shell: register %s: %w", f.Key, err)
		}
	}
	if n := m.restoreForms(); n > 0 {
		m.status.SetMessage(fmt.Sprintf("Restored %d form(s)", n), true)
	}

	m.bridge = newBridge(cfg.Session)
	m.refreshStatus()
	m.refreshSaved()
	return m, nil
}

// Init focuses the first field and starts listening for session callbacks.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.listen(), m.forms[0].Focus(0))
}

// Close stops session callbacks reaching the model. The session itself is
// owned by the caller.
func (m Model) Close() {
	m.bridge.Close()
}

// restoreForms applies stored snapshots and returns how many were applied.
func (m Model) restoreForms() int {
	reg := m.sess.Registry()
	n := 0
	for _, f := range m.forms {
		ok, err := reg.RestoreWith(f.Key, f.Restore)
		if err != nil {
			m.status.SetMessage(fmt.Sprintf("Could not restore %s: %v", f.Title, err), false)
			continue
		}
		if ok {
			n++
		}
	}
	return n
}

func (m Model) refreshStatus() {
	st := m.sess.Status()
	m.status.Account = st.Account.String()
	m.status.Idle = st.Idle.State
	m.status.Monitored = st.Idle.Running
	m.status.Recovery = st.Recovery
}

func (m Model) refreshSaved() {
	keys, err := m.sess.Registry().Persisted()
	if err != nil {
		return
	}
	m.status.Saved = len(keys)
}

// focusedForm returns the form holding focus, or nil.
func (m Model) focusedForm() *components.Form {
	if m.focus < 0 || m.focus >= len(m.forms) {
		return nil
	}
	return m.forms[m.focus]
}
