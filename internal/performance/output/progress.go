package output

import (
	"context"
	"time"

	"github.com/wesleyorama2/groomload/internal/performance/engine"
)

// ProgressSource is anything that can report live progress, normally an
// *engine.Engine.
type ProgressSource interface {
	Progress() engine.Progress
}

// Watch updates the console every interval until ctx is done or the run
// reaches a terminal state. Non-terminal writers get a line per interval,
// so callers usually pass a longer interval for them.
func Watch(ctx context.Context, src ProgressSource, console *Console, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := src.Progress()
			if p.State.Terminal() {
				return
			}
			console.Update(p)
		}
	}
}
