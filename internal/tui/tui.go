// Package tui is the single-screen terminal view: one pick action, an image
// preview, a loading indicator and the prediction with its soil data.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/Brownie44l1/soilscan/internal/acquire"
	"github.com/Brownie44l1/soilscan/internal/model"
	"github.com/Brownie44l1/soilscan/internal/pipeline"
)

const previewCols = 32

// Options configure the screen.
type Options struct {
	StartDir   string
	Extensions []string
	Logger     *zap.Logger
}

type (
	// stateMsg tells the view the controller changed; the view re-reads
	// the controller rather than trusting message order.
	stateMsg   struct{}
	modelMsg   struct{ err error }
	previewMsg struct {
		source acquire.Locator
		text   string
	}
	pickErrMsg struct{ err error }
)

// Model is the bubbletea model for the screen.
type Model struct {
	ctrl   *pipeline.Controller
	opts   Options
	logger *zap.Logger

	input   textinput.Model
	spinner spinner.Model
	styles  styles

	picking   bool
	notice    string
	state     pipeline.State
	modelErr  error
	preview   string
	previewOf acquire.Locator
	width     int
}

// New builds the screen around ctrl.
func New(ctrl *pipeline.Controller, opts Options) Model {
	if opts.StartDir == "" {
		opts.StartDir = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := defaultStyles()

	ti := textinput.New()
	ti.Placeholder = "path/to/soil.jpg"
	ti.Prompt = "Image: "
	ti.CharLimit = 1024
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = st.Spinner

	return Model{
		ctrl:    ctrl,
		opts:    opts,
		logger:  logger,
		input:   ti,
		spinner: sp,
		styles:  st,
		state:   ctrl.State(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForModel())
}

func (m Model) waitForModel() tea.Cmd {
	return func() tea.Msg {
		return modelMsg{err: m.ctrl.WaitReady(context.Background())}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-12)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.picking {
			return m.updatePicker(msg)
		}
		switch msg.String() {
		case "q", "esc":
			return m, tea.Quit
		case "u", "enter":
			return m.openPicker()
		}
		return m, nil

	case modelMsg:
		m.modelErr = msg.err
		if msg.err == nil {
			m.notice = ""
		}
		return m, nil

	case stateMsg:
		m.state = m.ctrl.State()
		if src := m.state.Source(); src != "" && src != m.previewOf {
			m.previewOf = src
			m.preview = ""
			return m, previewCmd(src)
		}
		if m.state.Phase() == pipeline.Idle {
			m.preview, m.previewOf = "", ""
		}
		return m, nil

	case previewMsg:
		if msg.source == m.previewOf {
			m.preview = msg.text
		}
		return m, nil

	case pickErrMsg:
		m.notice = pipeline.Describe(msg.err)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.picking {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) openPicker() (tea.Model, tea.Cmd) {
	if err := m.ctrl.Ready(); err != nil {
		m.notice = pipeline.Describe(err)
		return m, nil
	}
	if err := acquire.EnsureReadable(m.opts.StartDir); err != nil {
		m.notice = fmt.Sprintf("Cannot browse images: %v", err)
		return m, nil
	}
	m.notice = ""
	m.picking = true
	m.input.Reset()
	return m, m.input.Focus()
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.picking = false
		m.input.Blur()
		return m, m.pick("")
	case tea.KeyEnter:
		m.picking = false
		m.input.Blur()
		return m, m.pick(m.input.Value())
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// pick hands the entered path to the controller. An empty path is a
// dismissed picker.
func (m Model) pick(path string) tea.Cmd {
	ctrl, logger := m.ctrl, m.logger
	picker := acquire.PathPicker{Dir: m.opts.StartDir, Path: path, Extensions: m.opts.Extensions}
	return func() tea.Msg {
		if err := ctrl.Pick(context.Background(), picker); err != nil {
			logger.Warn("pick rejected", zap.Error(err))
			return pickErrMsg{err: err}
		}
		return nil
	}
}

func previewCmd(src acquire.Locator) tea.Cmd {
	return func() tea.Msg {
		text, err := loadPreview(src, previewCols)
		if err != nil {
			return previewMsg{source: src}
		}
		return previewMsg{source: src, text: text}
	}
}

func (m Model) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.Title.Render("Soil Scanner"))
	b.WriteString("  ")
	b.WriteString(s.Status.Render(m.modelStatus()))
	b.WriteString("\n\n")

	if m.picking {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(s.Help.Render(fmt.Sprintf("enter select • esc cancel • relative to %s", m.opts.StartDir)))
		b.WriteString("\n")
		return s.Frame.Render(b.String())
	}

	if m.ctrl.ModelStatus() == model.StatusReady {
		b.WriteString(s.Help.Render("u upload soil image • q quit"))
	} else {
		b.WriteString(s.Help.Render("q quit"))
	}
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(s.Notice.Render(m.notice))
		b.WriteString("\n")
	}

	st := m.state
	if src := st.Source(); src != "" {
		b.WriteString("\n")
		line := src.Name()
		if img, ok := st.Image(); ok {
			line = fmt.Sprintf("%s (%s, %d×%d)", line, img.Format, img.Width, img.Height)
		}
		b.WriteString(s.Label.Render("Image: "))
		b.WriteString(line)
		b.WriteString("\n")
		if m.preview != "" {
			b.WriteString(m.preview)
			b.WriteString("\n")
		}
	}

	switch st.Phase() {
	case pipeline.ImageSelected, pipeline.Predicting:
		b.WriteString("\n")
		b.WriteString(m.spinner.View())
		b.WriteString(" Predicting…\n")
	case pipeline.Succeeded:
		res, _ := st.Result()
		b.WriteString("\n")
		b.WriteString(m.field("Soil Type", res.Category.Title()))
		b.WriteString(m.field("pH Range", res.Attributes.PHRange))
		b.WriteString(m.field("Crops", res.Attributes.Crops))
		b.WriteString(m.field("Potassium", res.Attributes.Potassium))
		if res.Confidence > 0 {
			b.WriteString(m.field("Confidence", fmt.Sprintf("%.1f%%", res.Confidence*100)))
		}
	case pipeline.Failed:
		b.WriteString("\n")
		b.WriteString(s.Error.Render(st.Message()))
		b.WriteString("\n")
	}

	return s.Frame.Render(b.String())
}

func (m Model) field(label, value string) string {
	return m.styles.Label.Render(label+": ") + m.styles.Value.Render(value) + "\n"
}

func (m Model) modelStatus() string {
	switch m.ctrl.ModelStatus() {
	case model.StatusReady:
		return "model ready"
	case model.StatusUnavailable:
		var le *model.LoadError
		if errors.As(m.modelErr, &le) {
			return "model unavailable: " + le.Err.Error()
		}
		return "model unavailable"
	default:
		return m.spinner.View() + " loading model"
	}
}

// notifier forwards controller changes into a running program.
type notifier struct {
	mu sync.Mutex
	p  *tea.Program
}

func (n *notifier) set(p *tea.Program) {
	n.mu.Lock()
	n.p = p
	n.mu.Unlock()
}

func (n *notifier) observe(pipeline.State) {
	n.mu.Lock()
	p := n.p
	n.mu.Unlock()
	if p != nil {
		// Send blocks until the event loop reads it, and the controller may
		// be called from inside that loop.
		go p.Send(stateMsg{})
	}
}

// Run shows the screen until the user quits or ctx ends.
func Run(ctx context.Context, h *model.Handle, opts Options) error {
	n := &notifier{}
	ctrl := pipeline.New(h, pipeline.Options{Logger: opts.Logger, Observer: n.observe})
	defer ctrl.Close()

	p := tea.NewProgram(New(ctrl, opts), tea.WithContext(ctx), tea.WithAltScreen())
	n.set(p)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("screen: %w", err)
	}
	return nil
}
