// Command gui-server is a Fyne front end for the reliable file-delivery
// listener: start/stop controls, a base-directory picker, live counters,
// and a scrolling log view.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/relaywire/filewire/internal/config"
	"github.com/relaywire/filewire/internal/logger"
	"github.com/relaywire/filewire/internal/logging"
	"github.com/relaywire/filewire/internal/metrics"
	"github.com/relaywire/filewire/internal/sender"
	"github.com/relaywire/filewire/internal/transfer"
	"github.com/relaywire/filewire/internal/ui"
)

// logViewWriter adapts a *logging.LogView into an io.Writer so a
// *logger.Logger can write straight into the GUI's scrolling log panel.
type logViewWriter struct {
	view *logging.LogView
}

func (w logViewWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	up := strings.ToUpper(line)
	var level logging.LogLevel
	switch {
	case strings.Contains(up, "ERROR"):
		level = logging.LogError
	case strings.Contains(up, "WARN"):
		level = logging.LogWarning
	default:
		level = logging.LogInfo
	}
	fyne.Do(func() { w.view.Append(level, line) })
	return len(p), nil
}

// withValidation chains a FormattedEntry's own reformatting with a
// ValidationIndicator update.
func withValidation(entry *ui.FormattedEntry, indicator *ui.ValidationIndicator, validate func(string) error) {
	prev := entry.OnChanged
	entry.OnChanged = func(text string) {
		if prev != nil {
			prev(text)
		}
		if err := validate(text); err != nil {
			indicator.SetValid(false, err.Error())
		} else {
			indicator.SetValid(true, "")
		}
	}
	entry.OnChanged(entry.Text)
}

func main() {
	if runtime.GOOS == "windows" && strings.TrimSpace(os.Getenv("FYNE_DRIVER")) == "" {
		_ = os.Setenv("FYNE_DRIVER", "software")
	}

	serverSettings, err := config.LoadServerSettings()
	if err != nil {
		serverSettings = config.DefaultServerSettings()
	}

	a := app.New()
	a.Settings().SetTheme(ui.NewCustomTheme())
	w := a.NewWindow("filewire server")

	hostEntry := ui.NewFormattedEntry(ui.FormatIP, config.ValidateHost)
	hostEntry.SetText(serverSettings.Host)
	hostIndicator := ui.NewValidationIndicator()
	withValidation(hostEntry, hostIndicator, config.ValidateHost)

	portEntry := ui.NewFormattedEntry(ui.FormatPort, config.ValidatePort)
	portEntry.SetText(serverSettings.Port)
	portIndicator := ui.NewValidationIndicator()
	withValidation(portEntry, portIndicator, config.ValidatePort)

	baseDirEntry := widget.NewEntry()
	baseDirEntry.SetText(serverSettings.BaseDir)

	status := ui.NewStatusBar()
	connStatus := ui.NewConnectionStatus()
	counters := ui.NewInfoPanel("Counters")
	logView := logging.NewLogView()

	var mu sync.Mutex
	var srv *sender.Server
	var stopTicker chan struct{}

	pickDirBtn := widget.NewButton("Choose folder...", func() {
		d := dialog.NewFolderOpen(func(u fyne.ListableURI, err error) {
			if err != nil || u == nil {
				return
			}
			baseDirEntry.SetText(u.Path())
		}, w)
		d.Show()
	})

	startBtn := widget.NewButton("Start", func() {
		mu.Lock()
		defer mu.Unlock()
		if srv != nil {
			return
		}
		if !hostIndicator.IsValid() || !portIndicator.IsValid() {
			logView.Append(logging.LogWarning, "fix the highlighted fields before starting")
			return
		}
		host := hostEntry.Text
		p, _ := strconv.Atoi(strings.TrimSpace(portEntry.Text))
		log := logger.New(logger.Info, logViewWriter{view: logView}, "")
		source := transfer.DiskSource{BaseDir: strings.TrimSpace(baseDirEntry.Text)}
		s := sender.New(source, log, &metrics.ServerMetrics{})
		srv = s
		stopTicker = make(chan struct{})

		go func() {
			if err := s.ListenAndServe(host, p); err != nil {
				fyne.Do(func() { status.SetStatus("Error: " + err.Error()) })
			}
		}()
		go func(stop chan struct{}) {
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					snap := s.Metrics()
					fyne.Do(func() {
						counters.SetContent(fmt.Sprintf(
							"Bytes sent: %d\nSegments sent: %d\nRetransmit requests: %d\nRetransmissions: %d\nActive clients: %d",
							snap.BytesSent, snap.SegmentsSent, snap.RetransmitReqs, snap.Retransmissions, snap.ActiveClients))
						connStatus.SetStatus(snap.ActiveClients > 0)
					})
				}
			}
		}(stopTicker)

		status.SetStatus(fmt.Sprintf("Running on %s:%d (dir=%s)", host, p, strings.TrimSpace(baseDirEntry.Text)))
		connStatus.SetStatus(false)
	})

	stopBtn := widget.NewButton("Stop", func() {
		mu.Lock()
		defer mu.Unlock()
		if srv == nil {
			return
		}
		srv.Close()
		close(stopTicker)
		srv = nil
		status.SetStatus("Stopped")
		connStatus.SetStatus(false)
	})

	form := widget.NewForm(
		&widget.FormItem{Text: "Host", Widget: container.NewBorder(nil, nil, nil, hostIndicator, hostEntry)},
		&widget.FormItem{Text: "Port", Widget: container.NewBorder(nil, nil, nil, portIndicator, portEntry)},
		&widget.FormItem{Text: "Base directory", Widget: container.NewBorder(nil, nil, nil, pickDirBtn, baseDirEntry)},
	)
	buttons := container.NewHBox(startBtn, stopBtn, connStatus)
	statsBox := container.NewVBox(status, counters, widget.NewLabel("Logs:"))
	top := container.NewVBox(form, buttons, statsBox)
	w.SetContent(container.NewBorder(top, nil, nil, nil, logView.CanvasObject()))
	w.Resize(fyne.NewSize(float32(serverSettings.WindowWidth), float32(serverSettings.WindowHeight)))

	w.SetCloseIntercept(func() {
		config.UpdateServerSettingsFromUI(serverSettings, hostEntry.Text, portEntry.Text, baseDirEntry.Text)
		size := w.Content().Size()
		serverSettings.WindowWidth = int(size.Width)
		serverSettings.WindowHeight = int(size.Height)
		if err := config.SaveServerSettings(serverSettings); err != nil {
			fmt.Printf("failed to save settings: %v\n", err)
		}
		w.Close()
	})

	w.ShowAndRun()
}
