package logging

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

// LogEntry is one rendered line in a LogView.
type LogEntry struct {
	Level LogLevel
	Text  string
	Time  time.Time
}

// LogView is a scrollable log viewer that color-codes lines by severity,
// auto-scrolling to the newest entry on append.
type LogView struct {
	box      *fyne.Container
	scroll   *container.Scroll
	entries  []LogEntry
	maxLines int
}

// NewLogView creates an empty, auto-scrolling log viewer.
func NewLogView() *LogView {
	box := container.NewVBox()
	scroll := container.NewVScroll(box)
	scroll.SetMinSize(fyne.NewSize(600, 300))
	return &LogView{box: box, scroll: scroll, maxLines: 1000}
}

// CanvasObject returns the widget to place in a layout.
func (lv *LogView) CanvasObject() fyne.CanvasObject { return lv.scroll }

// Clear removes every line.
func (lv *LogView) Clear() {
	lv.entries = nil
	lv.box.Objects = nil
	lv.box.Refresh()
}

// Append adds a new line, trimming the oldest half once maxLines is
// exceeded and rebuilding the visible widgets.
func (lv *LogView) Append(level LogLevel, msg string) {
	e := LogEntry{Level: level, Text: msg, Time: time.Now()}
	lv.entries = append(lv.entries, e)
	if len(lv.entries) > lv.maxLines {
		lv.entries = lv.entries[len(lv.entries)-lv.maxLines/2:]
		lv.box.Objects = nil
		for _, ent := range lv.entries {
			lv.box.Add(lv.renderEntry(ent))
		}
	} else {
		lv.box.Add(lv.renderEntry(e))
	}
	lv.box.Refresh()
	if lv.scroll != nil {
		lv.scroll.ScrollToBottom()
	}
}

func (lv *LogView) colorFor(level LogLevel) color.Color {
	switch level {
	case LogError:
		return color.RGBA{0xFF, 0x55, 0x55, 0xFF}
	case LogWarning:
		return color.RGBA{0xFF, 0xD7, 0x64, 0xFF}
	case LogSuccess:
		return color.RGBA{0x6A, 0xE3, 0x7A, 0xFF}
	default: // INFO
		return color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	}
}

func (lv *LogView) labelFor(level LogLevel) string {
	switch level {
	case LogError:
		return "ERROR"
	case LogWarning:
		return "WARN"
	case LogSuccess:
		return "OK"
	default:
		return "INFO"
	}
}

func (lv *LogView) renderEntry(e LogEntry) fyne.CanvasObject {
	ts := e.Time.Format("15:04:05")
	c := canvas.NewText(fmt.Sprintf("[%s] %s: %s", ts, lv.labelFor(e.Level), e.Text), lv.colorFor(e.Level))
	c.Alignment = fyne.TextAlignLeading
	c.TextSize = 12
	return c
}
