package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/log"
	"github.com/natej/panos-upgrade/internal/model"
)

// CommandHandler is implemented by the daemon wiring to act on a parsed
// Command (the daemon handles cancel_upgrade for a job or a device).
type CommandHandler interface {
	Handle(ctx context.Context, cmd model.Command) error
}

// CommandIntake polls commands/incoming, parses and dispatches commands,
// and moves each descriptor to commands/processed exactly once, per
// spec §4.10.
type CommandIntake struct {
	cfg     *config.Config
	handler CommandHandler
}

// NewCommandIntake returns a CommandIntake bound to cfg's command
// directories.
func NewCommandIntake(cfg *config.Config, handler CommandHandler) *CommandIntake {
	return &CommandIntake{cfg: cfg, handler: handler}
}

// Poll runs one scan of commands/incoming in mtime-ascending order.
func (c *CommandIntake) Poll(ctx context.Context) error {
	entries, err := fsstore.ListJSONFiles(c.cfg.CommandsIncomingDir())
	if err != nil {
		return fmt.Errorf("intake: listing incoming commands: %w", err)
	}

	for _, e := range entries {
		var cmd model.Command
		if err := fsstore.ReadJSON(e.Path, &cmd); err != nil {
			log.Error("intake: unreadable command, discarding", "path", e.Path, "error", err.Error())
			c.moveProcessed(e.Path, e.Name)
			c.writeRejectionSidecar(e.Name, model.RejectionDetail{
				Reason: "unreadable_command",
				Detail: err.Error(),
			})
			continue
		}

		log.Info("intake: processing command", "command", cmd.Command, "target", cmd.Target, "job_id", cmd.JobID, "device", cmd.DeviceSerial)
		if err := c.handler.Handle(ctx, cmd); err != nil {
			log.Error("intake: command handling failed", "command", cmd.Command, "error", err.Error())
		}
		c.moveProcessed(e.Path, e.Name)
	}
	return nil
}

func (c *CommandIntake) moveProcessed(src, name string) {
	dst := c.cfg.CommandsProcessedDir() + "/" + name
	if err := fsstore.Move(src, dst); err != nil {
		log.Error("intake: moving processed command", "src", src, "dst", dst, "error", err.Error())
	}
}

// writeRejectionSidecar persists detail as "{name}.error.json" next to a
// processed command that could not be parsed, per spec §4.10 step 1 and
// SPEC_FULL.md §C.2.
func (c *CommandIntake) writeRejectionSidecar(name string, detail model.RejectionDetail) {
	detail.RejectedAt = time.Now().UTC()
	dst := c.cfg.CommandsProcessedDir() + "/" + name
	sidecar := dst[:len(dst)-len(".json")] + ".error.json"
	if err := fsstore.WriteJSON(sidecar, detail); err != nil {
		log.Error("intake: writing command rejection sidecar", "path", sidecar, "error", err.Error())
	}
}

// Run drives Poll on an interval, nudged early by w, until ctx is
// cancelled.
func (c *CommandIntake) Run(ctx context.Context, w *fsstore.Watcher, interval time.Duration) {
	for {
		if err := c.Poll(ctx); err != nil {
			log.Error("intake: command poll failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		fsstore.Wait(ctx, w, interval)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
