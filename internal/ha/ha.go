// Package ha implements the HA Coordinator of spec §4.7: for an HA-pair
// job, the passive member upgrades first, the remaining member's HA role is
// re-queried (never remembered) after that completes, then that member
// upgrades. Ambiguous HA state fails the job immediately rather than
// guessing.
package ha

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/engine"
	"github.com/natej/panos-upgrade/internal/inventory"
	"github.com/natej/panos-upgrade/internal/log"
	"github.com/natej/panos-upgrade/internal/model"
)

// ErrAmbiguousRoles is returned when the two devices do not present as
// exactly one active and one passive member.
var ErrAmbiguousRoles = errors.New("ha: ambiguous role pair, refusing to guess which member is active")

// Coordinator sequences an HA-pair job across the Upgrade Engine.
type Coordinator struct {
	Engine    *engine.Engine
	Inventory *inventory.Store
}

// New returns a Coordinator bound to eng's stores.
func New(eng *engine.Engine, inv *inventory.Store) *Coordinator {
	return &Coordinator{Engine: eng, Inventory: inv}
}

// Run upgrades serialA/serialB as an HA pair: queries both devices' HA
// state, upgrades whichever is passive, re-queries the role of the other
// member (the role of the member just upgraded is not read again), then
// upgrades that member if it reports active or passive. Each leg delegates to the
// Upgrade Engine, so DeviceStatus is written exactly as it would be for a
// standalone job.
func (c *Coordinator) Run(ctx context.Context, jobID, serialA, serialB string, downloadOnly, dryRun bool) error {
	first, second, err := c.pickPassiveFirst(ctx, serialA, serialB)
	if err != nil {
		return fmt.Errorf("ha: %s/%s: %w", serialA, serialB, err)
	}

	log.Info("ha pair upgrade: passive member first", "job_id", jobID, "passive", first, "active", second)
	if err := c.upgradeOne(ctx, jobID, first, downloadOnly, dryRun); err != nil {
		return fmt.Errorf("ha: upgrading passive member %s: %w", first, err)
	}

	// Roles are re-queried, never assumed, because the passive member's
	// upgrade and reboot can trigger a failover.
	secondRole, err := c.queryRole(ctx, second)
	if err != nil {
		return fmt.Errorf("ha: re-querying role of %s: %w", second, err)
	}
	if secondRole != deviceapi.HAActive && secondRole != deviceapi.HAPassive {
		return fmt.Errorf("ha: %s reports ambiguous role %q after peer upgrade: %w", second, secondRole, ErrAmbiguousRoles)
	}

	log.Info("ha pair upgrade: upgrading remaining member", "job_id", jobID, "serial", second, "role", secondRole)
	if err := c.upgradeOne(ctx, jobID, second, downloadOnly, dryRun); err != nil {
		return fmt.Errorf("ha: upgrading second member %s: %w", second, err)
	}
	return nil
}

// pickPassiveFirst queries both devices' live HA state concurrently and
// returns (passive, active). It fails with ErrAmbiguousRoles unless the
// pair presents as exactly one active and one passive member.
func (c *Coordinator) pickPassiveFirst(ctx context.Context, serialA, serialB string) (passive, active string, err error) {
	var roleA, roleB deviceapi.HAState

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := c.queryRole(gctx, serialA)
		roleA = r
		return err
	})
	g.Go(func() error {
		r, err := c.queryRole(gctx, serialB)
		roleB = r
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}

	switch {
	case roleA == deviceapi.HAPassive && roleB == deviceapi.HAActive:
		return serialA, serialB, nil
	case roleA == deviceapi.HAActive && roleB == deviceapi.HAPassive:
		return serialB, serialA, nil
	default:
		return "", "", fmt.Errorf("%w (got %s=%s, %s=%s)", ErrAmbiguousRoles, serialA, roleA, serialB, roleB)
	}
}

func (c *Coordinator) queryRole(ctx context.Context, serial string) (deviceapi.HAState, error) {
	dev, err := c.Inventory.Lookup(serial)
	if err != nil {
		return deviceapi.HAUnknown, err
	}
	cap, err := c.Engine.Open(dev.MgmtIP)
	if err != nil {
		return deviceapi.HAUnknown, err
	}
	defer cap.Close()
	return cap.HAState(ctx)
}

func (c *Coordinator) upgradeOne(ctx context.Context, jobID, serial string, downloadOnly, dryRun bool) error {
	return c.Engine.Run(ctx, engine.Request{
		JobID:        jobID,
		Serial:       serial,
		HARole:       model.HAUnknown,
		DownloadOnly: downloadOnly,
		DryRun:       dryRun,
	})
}
