package remoteexec

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hatchery-io/hatchery/internal/core"
	"github.com/hatchery-io/hatchery/internal/observability"
)

const (
	defaultWaitTimeout  = 5 * time.Minute
	defaultWaitInterval = 5 * time.Second
)

// WaitForSSH polls until an SSH session can be opened on the target.
// Fresh servers accept TCP before sshd is ready, so a successful dial
// alone is not enough; we require a trivial command to run.
func (e *Engine) WaitForSSH(ctx context.Context, target Target, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	start := time.Now()
	deadline := start.Add(timeout)

	var lastErr error
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			observability.SSHWaitSeconds.Observe(time.Since(start).Seconds())
			return core.NewAppError(core.ErrConnectivity,
				fmt.Sprintf("ssh %s not reachable after %s: %v", target.Addr(), timeout, lastErr))
		}

		if err := e.probe(ctx, target); err != nil {
			lastErr = err
			e.log.Debug("ssh not ready", zap.String("addr", target.Addr()), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(defaultWaitInterval):
			}
			continue
		}

		observability.SSHWaitSeconds.Observe(time.Since(start).Seconds())
		return nil
	}
}

func (e *Engine) probe(ctx context.Context, target Target) error {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := e.dialer.Dial(probeCtx, target)
	if err != nil {
		return err
	}
	defer conn.Close()

	proc, err := conn.Start(probeCtx, "true")
	if err != nil {
		return err
	}
	if code := proc.Wait(); code != 0 {
		return fmt.Errorf("probe exited %d", code)
	}
	return nil
}
