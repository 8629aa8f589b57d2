// Package trigger polls a well-known file for mtime changes and, on each
// change, posts one synthetic 0100 request to the admin façade -- a
// filesystem-based stand-in for an operator sending live traffic.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/npsb/npswitch/internal/config"
)

// pollInterval is how often the trigger file's mtime is checked.
const pollInterval = time.Second

// requestTimeout bounds how long a single injected POST may take.
const requestTimeout = 10 * time.Second

// messageRequest mirrors adminapi's POST /messages body.
type messageRequest struct {
	MTI    string            `json:"mti"`
	Fields map[string]string `json:"fields"`
}

// Watcher polls a configured path and, whenever the file's modification
// time advances, POSTs a sample message to the admin façade.
type Watcher struct {
	path     string
	sample   config.SampleConfig
	adminURL string
	client   *http.Client
	log      *slog.Logger
	lastMod  time.Time
}

// New builds a Watcher that posts to adminAddr's /messages endpoint. An
// empty path disables the watcher: Run returns immediately.
func New(cfg config.TriggerConfig, sample config.SampleConfig, adminAddr string, log *slog.Logger) *Watcher {
	return &Watcher{
		path:     cfg.File,
		sample:   sample,
		adminURL: fmt.Sprintf("http://%s/messages", adminAddr),
		client:   &http.Client{Timeout: requestTimeout},
		log:      log,
	}
}

// Run polls until ctx is cancelled. If no path was configured, it returns
// nil immediately without polling.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		w.log.Debug("trigger file not configured, watcher disabled")
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.checkOnce(ctx)
		}
	}
}

func (w *Watcher) checkOnce(ctx context.Context) {
	info, err := os.Stat(w.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.log.Warn("trigger file stat failed", "path", w.path, "error", err)
		}
		return
	}

	mod := info.ModTime()
	if !mod.After(w.lastMod) {
		return
	}
	w.lastMod = mod

	w.log.Info("trigger file changed, injecting sample message", "path", w.path)
	if err := w.inject(ctx); err != nil {
		w.log.Warn("trigger injection failed", "error", err)
	}

	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.log.Warn("failed to remove trigger file", "path", w.path, "error", err)
	}
}

// inject POSTs the configured sample 0100 to the admin façade.
func (w *Watcher) inject(ctx context.Context) error {
	req := messageRequest{
		MTI: "0100",
		Fields: map[string]string{
			"2":  w.sample.PAN,
			"4":  w.sample.Amount,
			"11": generateSTAN(),
			"37": w.sample.RRN,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal trigger request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.adminURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post trigger request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin façade returned status %d", resp.StatusCode)
	}
	return nil
}

// generateSTAN derives a 6-digit STAN from the current time, wrapping every
// million ticks. Collisions across concurrent injections are accepted: the
// correlation table overwrites on collision, which is the switch's documented
// behavior for this edge case.
func generateSTAN() string {
	n := time.Now().UnixNano() % 1_000_000
	return padSTAN(n)
}

func padSTAN(n int64) string {
	digits := [6]byte{'0', '0', '0', '0', '0', '0'}
	for i := 5; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[:])
}
