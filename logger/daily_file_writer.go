package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const dateLayout = "2006-01-02"

// DailyFileWriter is an io.Writer that appends to {service}_{date}.log in a
// directory and switches to a new file when the date changes. The date is
// checked on every write and by an hourly background tick. Safe for
// concurrent use.
type DailyFileWriter struct {
	service string
	dir     string
	clock   clockwork.Clock

	mu       sync.RWMutex
	file     *os.File
	currDate string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewDailyFileWriter creates the log directory if needed and opens the file
// for the current date.
//
// Parameters:
//   - service: Service name used in log file names
//   - dir: Directory for log files
//   - clock: Source of the current date; nil means the real clock
//
// Returns:
//   - The new DailyFileWriter, or an error if the directory or initial file could not be created
func NewDailyFileWriter(service, dir string, clock clockwork.Clock) (*DailyFileWriter, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &DailyFileWriter{
		service: service,
		dir:     dir,
		clock:   clock,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := w.rotate(); err != nil {
		cancel()
		return nil, fmt.Errorf("initial rotation failed: %w", err)
	}

	w.wg.Add(1)
	go w.autoRotate()
	return w, nil
}

// Write implements io.Writer.
func (w *DailyFileWriter) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, fmt.Errorf("writer is closed")
	}

	w.mu.RLock()
	stale := w.needsRotation()
	w.mu.RUnlock()

	if stale {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotation failed: %w", err)
		}
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.file == nil {
		return 0, fmt.Errorf("log file is not open")
	}

	return w.file.Write(p)
}

// CurrentLogFile returns the path of the file being written, or "" after Close.
func (w *DailyFileWriter) CurrentLogFile() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.file == nil {
		return ""
	}

	return w.file.Name()
}

// Close stops the background tick and closes the current file. It is safe to
// call multiple times.
func (w *DailyFileWriter) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil
	return err
}

func (w *DailyFileWriter) autoRotate() {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.Chan():
			_ = w.rotate()
		}
	}
}

// rotate opens the file for the current date unless it is already open.
func (w *DailyFileWriter) rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed.Load() {
		return fmt.Errorf("writer is closed")
	}

	if !w.needsRotation() {
		return nil
	}

	date := w.clock.Now().Format(dateLayout)
	filename := filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, date))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", filename, err)
	}

	if w.file != nil {
		_ = w.file.Close()
	}

	w.file = file
	w.currDate = date
	return nil
}

// needsRotation reports whether the date moved on; caller holds w.mu.
func (w *DailyFileWriter) needsRotation() bool {
	return w.file == nil || w.clock.Now().Format(dateLayout) != w.currDate
}
