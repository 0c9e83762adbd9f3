package ui

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// StatusBar shows a status line, an optional progress bar, and a trailing
// info label.
type StatusBar struct {
	widget.BaseWidget
	statusLabel *widget.Label
	progressBar *widget.ProgressBar
	infoLabel   *widget.Label
}

// NewStatusBar creates an idle status bar with its progress bar hidden.
func NewStatusBar() *StatusBar {
	sb := &StatusBar{
		statusLabel: widget.NewLabel("Ready"),
		progressBar: widget.NewProgressBar(),
		infoLabel:   widget.NewLabel(""),
	}
	sb.ExtendBaseWidget(sb)
	sb.progressBar.Hide()
	return sb
}

// CreateRenderer implements fyne.Widget.
func (sb *StatusBar) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewHBox(
		sb.statusLabel,
		sb.progressBar,
		widget.NewSeparator(),
		sb.infoLabel,
	))
}

// SetStatus updates the status text.
func (sb *StatusBar) SetStatus(status string) {
	sb.statusLabel.SetText(status)
}

// SetProgress sets progress in [0,1]; a non-positive value hides the bar.
func (sb *StatusBar) SetProgress(progress float64) {
	if progress > 0 {
		sb.progressBar.SetValue(progress)
		sb.progressBar.Show()
	} else {
		sb.progressBar.Hide()
	}
}

// SetInfo updates the trailing info text.
func (sb *StatusBar) SetInfo(info string) {
	sb.infoLabel.SetText(info)
}

// ToolbarButton is a button rendered as a filled/hollow dot, used for
// compact on/off toggles in a toolbar.
type ToolbarButton struct {
	widget.BaseWidget
	button   *widget.Button
	icon     fyne.Resource
	tooltip  string
	onTapped func()
}

// NewToolbarButton creates a toolbar button invoking onTapped.
func NewToolbarButton(icon fyne.Resource, tooltip string, onTapped func()) *ToolbarButton {
	tb := &ToolbarButton{
		icon:     icon,
		tooltip:  tooltip,
		onTapped: onTapped,
	}
	tb.button = widget.NewButton("", tb.onTapped)
	tb.ExtendBaseWidget(tb)
	return tb
}

// CreateRenderer implements fyne.Widget.
func (tb *ToolbarButton) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewButtonRenderer(tb.button)
}

// SetEnabled toggles the button's filled/hollow glyph.
func (tb *ToolbarButton) SetEnabled(enabled bool) {
	tb.button.SetText(tb.getButtonText(enabled))
}

func (tb *ToolbarButton) getButtonText(enabled bool) string {
	if enabled {
		return "●"
	}
	return "○"
}

// FormattedEntry is a text entry that reformats its content as the user
// types and optionally reports validation errors.
type FormattedEntry struct {
	widget.Entry
	formatter func(string) string
	validator func(string) error
}

// NewFormattedEntry creates an entry applying formatter on every change.
func NewFormattedEntry(formatter func(string) string, validator func(string) error) *FormattedEntry {
	fe := &FormattedEntry{
		formatter: formatter,
		validator: validator,
	}
	fe.ExtendBaseWidget(fe)
	fe.OnChanged = fe.onTextChanged
	return fe
}

func (fe *FormattedEntry) onTextChanged(text string) {
	if fe.formatter != nil {
		formatted := fe.formatter(text)
		if formatted != text {
			fe.SetText(formatted)
			fe.CursorColumn = len(formatted)
		}
	}
	if fe.validator != nil {
		_ = fe.validator(text) // caller wires visual feedback separately
	}
}

// InfoPanel is a titled, appendable block of label text.
type InfoPanel struct {
	widget.BaseWidget
	title   *widget.Label
	content *widget.Label
}

// NewInfoPanel creates a panel with the given title.
func NewInfoPanel(title string) *InfoPanel {
	ip := &InfoPanel{
		title:   widget.NewLabel(title),
		content: widget.NewLabel(""),
	}
	ip.ExtendBaseWidget(ip)
	ip.title.TextStyle.Bold = true
	return ip
}

// CreateRenderer implements fyne.Widget.
func (ip *InfoPanel) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewVBox(
		ip.title,
		widget.NewSeparator(),
		ip.content,
	))
}

// SetContent replaces the panel's body text.
func (ip *InfoPanel) SetContent(content string) {
	ip.content.SetText(content)
}

// AddContent appends a line to the panel's body text.
func (ip *InfoPanel) AddContent(content string) {
	current := ip.content.Text
	if current == "" {
		ip.content.SetText(content)
	} else {
		ip.content.SetText(current + "\n" + content)
	}
}

// Clear empties the panel's body text.
func (ip *InfoPanel) Clear() {
	ip.content.SetText("")
}

// ConnectionStatus is a dot-plus-label Connected/Disconnected indicator;
// the caller decides what counts as connected.
type ConnectionStatus struct {
	widget.BaseWidget
	statusLabel *widget.Label
	statusIcon  *widget.Label
}

// NewConnectionStatus creates an indicator starting in the disconnected state.
func NewConnectionStatus() *ConnectionStatus {
	cs := &ConnectionStatus{
		statusLabel: widget.NewLabel("Disconnected"),
		statusIcon:  widget.NewLabel("●"),
	}
	cs.ExtendBaseWidget(cs)
	cs.SetStatus(false)
	return cs
}

// CreateRenderer implements fyne.Widget.
func (cs *ConnectionStatus) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewHBox(
		cs.statusIcon,
		cs.statusLabel,
	))
}

// SetStatus flips the indicator between connected and disconnected.
func (cs *ConnectionStatus) SetStatus(connected bool) {
	if connected {
		cs.statusLabel.SetText("Connected")
		cs.statusIcon.SetText("●")
		cs.statusIcon.Importance = widget.SuccessImportance
	} else {
		cs.statusLabel.SetText("Disconnected")
		cs.statusIcon.SetText("●")
		cs.statusIcon.Importance = widget.DangerImportance
	}
}

// ProgressIndicator renders a progress bar plus speed and ETA labels for a
// transfer in progress.
type ProgressIndicator struct {
	widget.BaseWidget
	progressBar *widget.ProgressBar
	statusLabel *widget.Label
	speedLabel  *widget.Label
	etaLabel    *widget.Label
}

// NewProgressIndicator creates an idle progress indicator.
func NewProgressIndicator() *ProgressIndicator {
	pi := &ProgressIndicator{
		progressBar: widget.NewProgressBar(),
		statusLabel: widget.NewLabel("Waiting..."),
		speedLabel:  widget.NewLabel("0 B/s"),
		etaLabel:    widget.NewLabel("--:--"),
	}
	pi.ExtendBaseWidget(pi)
	return pi
}

// CreateRenderer implements fyne.Widget.
func (pi *ProgressIndicator) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewVBox(
		pi.statusLabel,
		pi.progressBar,
		container.NewHBox(
			pi.speedLabel,
			widget.NewSeparator(),
			pi.etaLabel,
		),
	))
}

// SetProgress updates progress (0..1), instantaneous speed, and a derived
// ETA from the remaining bytes.
func (pi *ProgressIndicator) SetProgress(progress float64, speed float64, totalBytes uint64, receivedBytes uint64) {
	pi.progressBar.SetValue(progress)

	if speed > 0 {
		pi.speedLabel.SetText(formatBytes(speed) + "/s")
		if totalBytes > receivedBytes {
			remainingBytes := totalBytes - receivedBytes
			etaSeconds := float64(remainingBytes) / speed
			pi.etaLabel.SetText(formatDuration(etaSeconds))
		} else {
			pi.etaLabel.SetText("--:--")
		}
	} else {
		pi.speedLabel.SetText("0 B/s")
		pi.etaLabel.SetText("--:--")
	}
}

// SetStatus updates the indicator's status line.
func (pi *ProgressIndicator) SetStatus(status string) {
	pi.statusLabel.SetText(status)
}

func formatBytes(bytes float64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	unit := 0
	for bytes >= 1024 && unit < len(units)-1 {
		bytes /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%.0f %s", bytes, units[unit])
	}
	return fmt.Sprintf("%.1f %s", bytes, units[unit])
}

func formatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.0fs", seconds)
	} else if seconds < 3600 {
		minutes := int(seconds / 60)
		secs := int(seconds) % 60
		return fmt.Sprintf("%02d:%02d", minutes, secs)
	}
	hours := int(seconds / 3600)
	minutes := int((seconds - float64(hours*3600)) / 60)
	return fmt.Sprintf("%02d:%02d:00", hours, minutes)
}

// ValidationIndicator shows a check/cross glyph plus an optional message
// next to a form field.
type ValidationIndicator struct {
	widget.BaseWidget
	icon  *widget.Label
	label *widget.Label
	valid bool
}

// NewValidationIndicator creates an indicator starting in the invalid state.
func NewValidationIndicator() *ValidationIndicator {
	vi := &ValidationIndicator{
		icon:  widget.NewLabel("●"),
		label: widget.NewLabel(""),
		valid: false,
	}
	vi.ExtendBaseWidget(vi)
	vi.SetValid(false, "")
	return vi
}

// CreateRenderer implements fyne.Widget.
func (vi *ValidationIndicator) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewHBox(
		vi.icon,
		vi.label,
	))
}

// SetValid updates the indicator's glyph, color, and message.
func (vi *ValidationIndicator) SetValid(valid bool, message string) {
	vi.valid = valid
	vi.label.SetText(message)
	if valid {
		vi.icon.SetText("✓")
		vi.icon.Importance = widget.SuccessImportance
	} else {
		vi.icon.SetText("✗")
		vi.icon.Importance = widget.DangerImportance
	}
}

// IsValid reports the indicator's current validity.
func (vi *ValidationIndicator) IsValid() bool {
	return vi.valid
}

// FormatIP trims and strips whitespace from a user-entered host/IP.
func FormatIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	return strings.ReplaceAll(ip, " ", "")
}

// FormatPort keeps only digits from a user-entered port string.
func FormatPort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ""
	}
	var result strings.Builder
	for _, char := range port {
		if char >= '0' && char <= '9' {
			result.WriteRune(char)
		}
	}
	return result.String()
}

// FormatFilePath strips characters that have no business in a requested
// filename (path traversal, shell metacharacters).
func FormatFilePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	dangerous := []string{"..", "~", "$", "`", "|", "&", ";"}
	for _, char := range dangerous {
		path = strings.ReplaceAll(path, char, "")
	}
	return path
}
