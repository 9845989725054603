// Package tui は端末上で動く無限キャンバスです。
// マウスホイールでズーム、背景のドラッグでパン、カードのドラッグで移動します。
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"

	"github.com/shouni/gemini-canvas-kit/pkg/app"
	"github.com/shouni/gemini-canvas-kit/pkg/domain"
	"github.com/shouni/gemini-canvas-kit/pkg/notify"
)

// Styles はスタイルのプリセットです。"s" キーで順に切り替えます。
var Styles = []string{
	"Cinematic", "Photorealistic", "Anime", "Digital Art",
	"Oil Painting", "Watercolor", "Cyberpunk", "3D Render",
}

var qualities = []domain.QualityTier{domain.QualityStandard, domain.QualityHD, domain.Quality4K}

const (
	headerRows = 1
	footerRows = 5
	panStep    = 4 // セル
	refresh    = 200 * time.Millisecond
)

type inputMode int

const (
	modeCanvas inputMode = iota
	modePrompt
	modeAPIKey
)

// Options は TUI の設定です。
type Options struct {
	// OutputDir は画像・PDF・ボードの書き出し先です。
	OutputDir string
	// SaveKey が設定されている場合、API キーがないときに画面内で入力を求めます。
	SaveKey func(ctx context.Context, key string) error
}

type tickMsg time.Time

type notifyMsg notify.Event

// Model は bubbletea のモデルです。
type Model struct {
	studio *app.Studio
	opts   Options
	ctx    context.Context

	input         textinput.Model
	mode          inputMode
	pendingPrompt string

	width, height int
	selected      string
	status        string

	copyText func(string) error
}

// New は Model を作成します。
func New(ctx context.Context, studio *app.Studio, opts Options) *Model {
	in := textinput.New()
	in.Placeholder = "Describe your vision..."
	in.CharLimit = 2000
	in.Prompt = ""
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return &Model{
		studio:   studio,
		opts:     opts,
		ctx:      ctx,
		input:    in,
		copyText: clipboard.WriteAll,
	}
}

// Run は TUI を起動し、終了するまで戻りません。
func Run(ctx context.Context, studio *app.Studio, opts Options) error {
	m := New(ctx, studio, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	unsubscribe := studio.Notifications().Subscribe(func(e notify.Event) { p.Send(notifyMsg(e)) })
	defer unsubscribe()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUIの実行に失敗しました: %w", err)
	}
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func (m *Model) canvasSize() (w, h int) {
	return m.width, max(0, m.height-headerRows-footerRows)
}

// viewSize はキャンバス領域の大きさをスクリーン座標で返します。
func (m *Model) viewSize() (float64, float64) {
	w, h := m.canvasSize()
	return float64(w) * cellW, float64(h) * cellH
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, msg.Width-12)
		return m, nil

	case tickMsg:
		if _, ok := m.studio.Board.Store.Get(m.selected); !ok {
			m.selected = ""
		}
		return m, tick()

	case notifyMsg:
		return m, nil

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.mode != modeCanvas {
			return m.updateInput(msg)
		}
		return m.handleCanvasKey(msg)
	}
	return m, nil
}

// screenPoint はセル座標をキャンバス領域内のスクリーン座標に変換します。領域外なら ok=false です。
func (m *Model) screenPoint(x, y int) (domain.Point, bool) {
	w, h := m.canvasSize()
	row := y - headerRows
	if x < 0 || x >= w || row < 0 || row >= h {
		return domain.Point{}, false
	}
	return domain.Point{X: (float64(x) + 0.5) * cellW, Y: (float64(row) + 0.5) * cellH}, true
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	board := m.studio.Board
	p, inside := m.screenPoint(msg.X, msg.Y)

	switch msg.Action {
	case tea.MouseActionPress:
		if !inside {
			return
		}
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			board.Wheel(p, 1)
		case tea.MouseButtonWheelDown:
			board.Wheel(p, -1)
		case tea.MouseButtonLeft:
			if e, ok := board.HitTest(p); ok {
				m.selected = e.ID
			} else {
				m.selected = ""
			}
			board.PointerDown(p)
		}
	case tea.MouseActionMotion:
		if !inside {
			board.PointerLeave()
			return
		}
		board.PointerMove(p)
	case tea.MouseActionRelease:
		board.PointerUp()
	}
}

func (m *Model) handleCanvasKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	board := m.studio.Board
	vw, vh := m.viewSize()
	center := domain.Point{X: vw / 2, Y: vh / 2}
	settings := m.studio.Settings()

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "/", "i", "enter":
		m.mode = modePrompt
		return m, m.input.Focus()
	case "left", "h":
		board.Viewport.Pan(panStep*cellW, 0)
	case "right", "l":
		board.Viewport.Pan(-panStep*cellW, 0)
	case "up", "k":
		board.Viewport.Pan(0, panStep*cellH)
	case "down", "j":
		board.Viewport.Pan(0, -panStep*cellH)
	case "+", "=":
		board.Wheel(center, 1)
	case "-":
		board.Wheel(center, -1)
	case "0":
		board.Viewport.Reset()
	case "]", "tab":
		m.cycleSelection(1)
	case "[", "shift+tab":
		m.cycleSelection(-1)
	case "n":
		settings.NumImages = settings.NumImages%m.studio.MaxCount() + 1
		m.studio.SetSettings(settings)
	case "a":
		settings.AspectRatio = next(domain.AspectRatios, settings.AspectRatio)
		m.studio.SetSettings(settings)
	case "g":
		settings.Quality = next(qualities, settings.Quality)
		m.studio.SetSettings(settings)
	case "s":
		settings.Style = next(Styles, settings.Style)
		m.studio.SetSettings(settings)
	case "v":
		if m.selected != "" {
			if _, err := m.studio.Variate(m.selected); err != nil {
				m.status = err.Error()
			}
		}
	case "y":
		m.copySelectedPrompt()
	case "d":
		if m.selected != "" {
			_, _ = m.studio.Download(m.ctx, m.selected, m.opts.OutputDir)
		}
	case "D":
		_, _ = m.studio.DownloadAll(m.ctx, m.opts.OutputDir)
	case "p":
		_ = m.studio.ExportPDF(m.ctx, m.exportPath(".pdf"))
	case "e":
		_ = m.studio.ExportBoard(m.ctx, m.exportPath("-board.png"))
	case "C":
		m.studio.ClearCanvas(m.ctx)
		m.selected = ""
	case "ctrl+s":
		if _, err := m.studio.SaveSession(m.ctx, ""); errors.Is(err, app.ErrNoSessionStore) {
			m.status = err.Error()
		}
	case "K":
		m.enterKeyMode("")
		return m, m.input.Focus()
	}
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.leaveInput()
		return m, nil
	case tea.KeyEnter:
		if m.mode == modeAPIKey {
			return m, m.submitKey()
		}
		m.submitPrompt(m.input.Value())
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submitPrompt(prompt string) {
	vw, vh := m.viewSize()
	_, err := m.studio.Generate(prompt, vw, vh)
	switch {
	case err == nil:
		m.input.SetValue("")
		m.leaveInput()
	case errors.Is(err, domain.ErrMissingCredential) && m.opts.SaveKey != nil:
		m.enterKeyMode(prompt)
	}
}

func (m *Model) enterKeyMode(pending string) {
	m.pendingPrompt = pending
	m.mode = modeAPIKey
	m.input.SetValue("")
	m.input.Placeholder = "Paste your Gemini API key"
	m.input.EchoMode = textinput.EchoPassword
}

func (m *Model) submitKey() tea.Cmd {
	if m.opts.SaveKey == nil {
		m.leaveInput()
		return nil
	}
	if err := m.opts.SaveKey(m.ctx, m.input.Value()); err != nil {
		m.status = err.Error()
		return nil
	}
	pending := m.pendingPrompt
	m.leaveInput()
	m.status = "API key saved"
	if strings.TrimSpace(pending) != "" {
		m.input.SetValue(pending)
		m.mode = modePrompt
		m.submitPrompt(pending)
		if m.mode == modePrompt {
			return m.input.Focus()
		}
	}
	return nil
}

func (m *Model) leaveInput() {
	if m.mode == modeAPIKey {
		m.input.SetValue("")
		m.input.EchoMode = textinput.EchoNormal
		m.input.Placeholder = "Describe your vision..."
		m.pendingPrompt = ""
	}
	m.mode = modeCanvas
	m.input.Blur()
}

func (m *Model) cycleSelection(dir int) {
	entities := m.studio.Board.Store.Snapshot()
	if len(entities) == 0 {
		m.selected = ""
		return
	}
	idx := -1
	for i, e := range entities {
		if e.ID == m.selected {
			idx = i
			break
		}
	}
	switch {
	case idx < 0 && dir < 0:
		idx = len(entities) - 1
	case idx < 0:
		idx = 0
	default:
		idx = (idx + dir + len(entities)) % len(entities)
	}
	m.selected = entities[idx].ID
}

func (m *Model) copySelectedPrompt() {
	e, ok := m.studio.Board.Store.Get(m.selected)
	if !ok {
		return
	}
	if err := m.copyText(e.Prompt); err != nil {
		m.status = "clipboard unavailable: " + err.Error()
		return
	}
	m.status = "Prompt copied"
}

func (m *Model) exportPath(suffix string) string {
	name := "canvas-" + time.Now().Format("20060102-150405") + suffix
	return filepath.Join(m.opts.OutputDir, name)
}

func next[T comparable](list []T, cur T) T {
	for i, v := range list {
		if v == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteByte('\n')

	w, h := m.canvasSize()
	for _, line := range renderCanvas(m.studio.Board, w, h, m.selected) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString(m.detailView())
	b.WriteByte('\n')
	b.WriteString(m.promptView())
	b.WriteByte('\n')
	b.WriteString(m.settingsView())
	b.WriteByte('\n')
	b.WriteString(m.notificationView())
	return b.String()
}

func (m *Model) headerView() string {
	vp := m.studio.Board.Viewport
	left := headerStyle.Render("Gemini Canvas")
	right := settingsStyle.Render(fmt.Sprintf(" %s · %d cards · zoom %d%%",
		m.studio.State(), m.studio.Board.Store.Len(), int(vp.Scale*100+0.5)))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

// detailView は選択中のカードの情報を2行で表示します。
func (m *Model) detailView() string {
	e, ok := m.studio.Board.Store.Get(m.selected)
	if !ok {
		return hintStyle.Render("drag: pan/move · wheel: zoom · /: prompt · v: variate · d: save · y: copy · C: clear · ctrl+s: save canvas · q: quit") + "\n"
	}
	info := fmt.Sprintf("%s [%s]", e.Title, e.AspectRatio)
	if img, ok := e.Image(); ok {
		info += fmt.Sprintf(" %s %s", humanize.Bytes(uint64(len(img.Bytes))), img.MimeType)
	} else {
		info += " generating"
	}
	lines := strings.SplitN(wordwrap.String(e.Prompt, max(10, m.width-2)), "\n", 2)
	prompt := lines[0]
	if len(lines) > 1 {
		prompt += " ..."
	}
	return detailStyle.Render(info) + "\n" + hintStyle.Render(prompt)
}

func (m *Model) promptView() string {
	label := "  "
	switch m.mode {
	case modePrompt:
		label = "> "
	case modeAPIKey:
		label = "key "
	}
	return promptLabelStyle.Render(label) + m.input.View()
}

func (m *Model) settingsView() string {
	s := m.studio.Settings()
	return settingsStyle.Render(fmt.Sprintf("style %s · %s · %s · ×%d · creativity %d",
		s.Style, s.AspectRatio, s.Quality, s.NumImages, s.Creativity))
}

func (m *Model) notificationView() string {
	active := m.studio.Notifications().Active()
	if len(active) == 0 {
		return hintStyle.Render(m.status)
	}
	n := active[len(active)-1]
	if n.Level == notify.LevelError {
		return errorStyle.Render(n.Message)
	}
	return successStyle.Render(n.Message)
}
