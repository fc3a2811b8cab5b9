package config

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "remindbot/pkg/logx"
)

const (
	watchRetryBase = 250 * time.Millisecond
	watchRetryMax  = 5 * time.Second
)

var errWatcherClosed = errors.New("config watcher closed")

// retryDelay doubles from watchRetryBase up to watchRetryMax, plus up to
// 50% jitter.
func retryDelay(attempt int) time.Duration {
	d := watchRetryBase << min(attempt, 5)
	d = min(d, watchRetryMax)
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}

// Watch reloads the file after it changes until ctx is done. Bursts of
// events within the debounce window collapse into one reload. The parent
// directory is watched because editors often replace the file by rename.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	for attempt := 0; ctx.Err() == nil; attempt++ {
		err := m.watchOnce(ctx, dir)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errWatcherClosed) {
			// The watcher ran; start backing off from scratch.
			attempt = 0
		}
		wait := retryDelay(attempt)
		m.log.Warn("config watch failed; retrying", logx.String("dir", dir), logx.Duration("backoff", wait), logx.Err(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
	return nil
}

func (m *ConfigManager) watchOnce(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir))
	// Catch edits made before the watch was armed (after Load, or while the
	// previous watcher was down). reload skips an unchanged file.
	m.reload(ctx)

	name := filepath.Base(m.path)
	pending := time.NewTimer(time.Hour)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if strings.EqualFold(filepath.Base(ev.Name), name) {
				pending.Reset(m.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				pending.Reset(m.debounce)
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}
