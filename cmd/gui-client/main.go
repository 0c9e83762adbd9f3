// Command gui-client is a Fyne front end for the reliable file-delivery
// receiver: connection parameters, a loss-simulation seq list for
// exercising the retransmission path, live progress, and a scrolling log.
package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
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
	"github.com/relaywire/filewire/internal/receiver"
	"github.com/relaywire/filewire/internal/transfer"
	"github.com/relaywire/filewire/internal/ui"
)

type logViewWriter struct{ view *logging.LogView }

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

// parseLossSim turns a comma-separated seq list (as text) into the set
// receiver.Config expects.
func parseLossSim(text string) (map[uint32]bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	out := make(map[uint32]bool)
	for _, field := range strings.Split(text, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid seq %q: %w", field, err)
		}
		out[uint32(n)] = true
	}
	return out, nil
}

// withValidation chains a FormattedEntry's own reformatting with a
// ValidationIndicator update, since NewFormattedEntry only wires the
// formatter/validator pair into a silent callback.
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
	// seed the initial state without waiting for the first keystroke.
	entry.OnChanged(entry.Text)
}

func main() {
	if runtime.GOOS == "windows" && strings.TrimSpace(os.Getenv("FYNE_DRIVER")) == "" {
		_ = os.Setenv("FYNE_DRIVER", "software")
	}

	clientSettings, err := config.LoadClientSettings()
	if err != nil {
		clientSettings = config.DefaultClientSettings()
	}

	a := app.New()
	a.Settings().SetTheme(ui.NewCustomTheme())
	w := a.NewWindow("filewire client")

	hostEntry := ui.NewFormattedEntry(ui.FormatIP, config.ValidateHost)
	hostEntry.SetText(clientSettings.Host)
	hostIndicator := ui.NewValidationIndicator()
	withValidation(hostEntry, hostIndicator, config.ValidateHost)

	portEntry := ui.NewFormattedEntry(ui.FormatPort, config.ValidatePort)
	portEntry.SetText(clientSettings.Port)
	portIndicator := ui.NewValidationIndicator()
	withValidation(portEntry, portIndicator, config.ValidatePort)

	fileEntry := ui.NewFormattedEntry(ui.FormatFilePath, config.ValidateFilePath)
	fileEntry.SetText(clientSettings.LastFile)
	fileIndicator := ui.NewValidationIndicator()
	withValidation(fileEntry, fileIndicator, config.ValidateFilePath)

	outputEntry := widget.NewEntry()
	outputEntry.SetText(clientSettings.OutputPath)
	outputEntry.SetPlaceHolder("output path or directory (e.g. /tmp or /tmp/out.bin)")
	chooseDirBtn := widget.NewButton("Choose folder...", func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil || uri == nil {
				return
			}
			outputEntry.SetText(uri.Path())
		}, w)
	})

	lossSimEntry := widget.NewEntry()
	lossSimEntry.SetPlaceHolder("seqs to drop once, comma-separated (e.g. 1,5,9)")

	connStatus := ui.NewConnectionStatus()
	progressInd := ui.NewProgressIndicator()
	logView := logging.NewLogView()

	var startBtn, stopBtn *widget.Button
	transferRunning := false

	runTransfer := func() {
		host := strings.TrimSpace(hostEntry.Text)
		port, _ := strconv.Atoi(strings.TrimSpace(portEntry.Text))
		path := strings.TrimSpace(fileEntry.Text)

		lossSim, err := parseLossSim(lossSimEntry.Text)
		if err != nil {
			fyne.Do(func() { logView.Append(logging.LogError, err.Error()) })
			return
		}

		outPath := strings.TrimSpace(outputEntry.Text)
		if outPath == "" {
			outPath = "recv_" + filepath.Base(path)
		} else if st, err := os.Stat(outPath); err == nil && st.IsDir() {
			outPath = filepath.Join(outPath, "recv_"+filepath.Base(path))
		}

		log := logger.New(logger.Info, logViewWriter{view: logView}, "")
		m := metrics.NewTransferMetrics()
		sink := transfer.DiskSink{BaseDir: filepath.Dir(outPath)}
		rcv := receiver.New(sink, log, m)

		addr, err := resolveAddr(host, port)
		if err != nil {
			fyne.Do(func() { logView.Append(logging.LogError, err.Error()) })
			return
		}
		outputName := filepath.Base(outPath)

		fyne.Do(func() { connStatus.SetStatus(true) })

		stop := make(chan struct{})
		go func() {
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
			var lastBytes uint64
			lastTick := time.Now()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					snap := m.Snapshot()
					now := time.Now()
					var rate float64
					if elapsed := now.Sub(lastTick).Seconds(); elapsed > 0 {
						rate = float64(snap.BytesReceived-lastBytes) / elapsed
					}
					lastBytes, lastTick = snap.BytesReceived, now
					fyne.Do(func() {
						progressInd.SetProgress(0, rate, 0, snap.BytesReceived)
						progressInd.SetStatus(fmt.Sprintf("Segments: %d | Retransmit rounds: %d | Checksum failures: %d",
							snap.SegmentsReceived, snap.RetransmitRounds, snap.ChecksumFailures))
					})
				}
			}
		}()

		err = rcv.Fetch(receiver.Config{ServerAddr: addr, FileName: filepath.Base(path), OutputName: outputName, LossSim: lossSim})
		close(stop)

		fyne.Do(func() {
			connStatus.SetStatus(false)
			if err != nil {
				logView.Append(logging.LogError, "transfer aborted: "+err.Error())
				progressInd.SetProgress(0, 0, 0, 0)
				progressInd.SetStatus("Aborted")
			} else {
				logView.Append(logging.LogSuccess, "transfer complete: "+outPath)
				progressInd.SetProgress(1, 0, 0, 0)
				progressInd.SetStatus("Done")
			}
			transferRunning = false
			startBtn.Enable()
			stopBtn.Disable()
		})
	}

	startBtn = widget.NewButton("Start", func() {
		if transferRunning {
			return
		}
		if !hostIndicator.IsValid() || !portIndicator.IsValid() || !fileIndicator.IsValid() {
			logView.Append(logging.LogWarning, "fix the highlighted fields before starting")
			return
		}
		transferRunning = true
		startBtn.Disable()
		stopBtn.Enable()
		progressInd.SetProgress(0, 0, 0, 0)
		progressInd.SetStatus("Waiting...")
		go runTransfer()
	})
	stopBtn = widget.NewButton("Stop", func() {
		// The receiver has no mid-transfer cancellation (only timeout
		// exhaustion aborts it); offline the server instead to force
		// that path during manual testing.
		logView.Append(logging.LogWarning, "cancellation is not supported mid-transfer; let it exhaust its attempts")
	})
	stopBtn.Disable()

	form := widget.NewForm(
		&widget.FormItem{Text: "Host", Widget: container.NewBorder(nil, nil, nil, hostIndicator, hostEntry)},
		&widget.FormItem{Text: "Port", Widget: container.NewBorder(nil, nil, nil, portIndicator, portEntry)},
		&widget.FormItem{Text: "File", Widget: container.NewBorder(nil, nil, nil, fileIndicator, fileEntry)},
		&widget.FormItem{Text: "Output", Widget: container.NewBorder(nil, nil, nil, chooseDirBtn, outputEntry)},
		&widget.FormItem{Text: "Loss-sim seqs", Widget: lossSimEntry},
	)

	buttons := container.NewHBox(startBtn, stopBtn, connStatus)
	top := container.NewVBox(form, buttons, progressInd)
	w.SetContent(container.NewBorder(top, nil, nil, nil, logView.CanvasObject()))
	w.Resize(fyne.NewSize(float32(clientSettings.WindowWidth), float32(clientSettings.WindowHeight)))

	w.SetCloseIntercept(func() {
		params := config.ClientUIParams{
			Host:       hostEntry.Text,
			Port:       portEntry.Text,
			LastFile:   fileEntry.Text,
			OutputPath: outputEntry.Text,
			Timeout:    clientSettings.Timeout,
			Retries:    clientSettings.Retries,
		}
		config.UpdateClientSettingsFromUI(clientSettings, params)
		size := w.Content().Size()
		clientSettings.WindowWidth = int(size.Width)
		clientSettings.WindowHeight = int(size.Height)
		if err := config.SaveClientSettings(clientSettings); err != nil {
			fmt.Printf("failed to save settings: %v\n", err)
		}
		w.Close()
	})

	w.ShowAndRun()
}

func resolveAddr(host string, port int) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
}
