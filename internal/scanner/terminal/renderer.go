// Package terminal draws scanner views for keyboard-wedge stations.
package terminal

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"eventgate/internal/checkpoint/models"
	"eventgate/internal/scanner"
)

const defaultWidth = 60

type theme struct {
	allowed lipgloss.Color
	warning lipgloss.Color
	blocked lipgloss.Color
	muted   lipgloss.Color
	text    lipgloss.Color
}

var defaultTheme = theme{
	allowed: lipgloss.Color("42"),
	warning: lipgloss.Color("214"),
	blocked: lipgloss.Color("196"),
	muted:   lipgloss.Color("245"),
	text:    lipgloss.Color("252"),
}

// Renderer writes one boxed frame per view.
type Renderer struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	theme theme
}

var _ scanner.Renderer = (*Renderer)(nil)

func New(out io.Writer, width int) *Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	return &Renderer{out: out, width: width, theme: defaultTheme}
}

func (r *Renderer) Render(v scanner.View) {
	frame := r.Format(v)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, frame)
}

// Format returns the frame for v without writing it.
func (r *Renderer) Format(v scanner.View) string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(r.theme.muted).
		Render(fmt.Sprintf("station %s  ·  %s", v.Checkpoint, v.State))

	lines := []string{header}
	switch v.State {
	case scanner.StateIdle:
		lines = append(lines, "Ready to scan")
	case scanner.StateLookupPending:
		lines = append(lines, "Looking up "+v.Token+" …")
	case scanner.StateDecisionShown, scanner.StateSuccess:
		lines = append(lines, r.decisionLine(v))
		if v.Profile != nil {
			lines = append(lines, r.profileLines(v)...)
		}
		if v.Record != nil {
			lines = append(lines, r.flagsLine(v.Record))
		}
		if v.CanConfirm() {
			lines = append(lines, lipgloss.NewStyle().Foreground(r.theme.muted).Render("[y] confirm   [x] close"))
		}
	}
	if v.Message != "" && v.State != scanner.StateDecisionShown && v.State != scanner.StateSuccess {
		lines = append(lines, lipgloss.NewStyle().Foreground(r.theme.warning).Render(v.Message))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(r.borderColor(v)).
		Padding(0, 1).
		Width(r.width).
		Render(strings.Join(lines, "\n"))
}

func (r *Renderer) decisionLine(v scanner.View) string {
	label := string(v.Decision)
	if v.State == scanner.StateSuccess {
		label = "SUCCESS"
	}
	if v.Message != "" {
		label += "  " + v.Message
	}
	return lipgloss.NewStyle().Bold(true).Foreground(r.borderColor(v)).Render(label)
}

func (r *Renderer) profileLines(v scanner.View) []string {
	p := v.Profile
	style := lipgloss.NewStyle().Foreground(r.theme.text)
	lines := []string{style.Render(p.Name.Full())}
	var details []string
	if p.Age > 0 {
		details = append(details, fmt.Sprintf("age %d", p.Age))
	}
	if p.Gender != "" {
		details = append(details, p.Gender)
	}
	if p.PhoneNumber != "" {
		details = append(details, p.PhoneNumber)
	}
	if len(details) > 0 {
		lines = append(lines, style.Render(strings.Join(details, " · ")))
	}
	return lines
}

func (r *Renderer) flagsLine(rec *models.TokenRecord) string {
	parts := []string{mark(rec.EntryGate) + " entryGate"}
	ids := make([]string, 0, len(rec.Checkpoints))
	for cp := range rec.Checkpoints {
		ids = append(ids, cp.String())
	}
	sort.Strings(ids)
	for _, id := range ids {
		parts = append(parts, mark(rec.Checkpoints[models.CheckpointID(id)])+" "+id)
	}
	return lipgloss.NewStyle().Foreground(r.theme.muted).Render(strings.Join(parts, "  "))
}

func (r *Renderer) borderColor(v scanner.View) lipgloss.Color {
	if v.State == scanner.StateSuccess {
		return r.theme.allowed
	}
	switch v.Decision {
	case scanner.KindAllowed:
		return r.theme.allowed
	case scanner.KindAlreadyDone:
		return r.theme.warning
	case scanner.KindBlocked, scanner.KindNotFound, scanner.KindError:
		return r.theme.blocked
	default:
		return r.theme.muted
	}
}

func mark(done bool) string {
	if done {
		return "✔"
	}
	return "·"
}
