package broadlink

import (
	"context"
	"sync"
	"time"

	rm "github.com/nerrad567/gray-logic-broadlink/internal/broadlink"
	"github.com/nerrad567/gray-logic-broadlink/internal/device"
)

// DiscoverFunc runs one discovery round. rm.Discover is the default.
type DiscoverFunc func(ctx context.Context, opts rm.DiscoverOptions) ([]rm.Info, error)

// DiscovererConfig configures periodic discovery.
type DiscovererConfig struct {
	Registry *device.Registry

	// Options are passed to every round.
	Options rm.DiscoverOptions

	// Transport configures devices built from discovery replies.
	Transport rm.Options

	// Interval between rounds. Zero runs a single round.
	Interval time.Duration

	// Discover overrides the discovery round (tests).
	Discover DiscoverFunc

	Logger Logger
}

// Discoverer registers devices found by broadcast discovery.
type Discoverer struct {
	cfg    DiscovererConfig
	logger Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDiscoverer creates a discoverer. Call Start to begin.
func NewDiscoverer(cfg DiscovererConfig) *Discoverer {
	if cfg.Discover == nil {
		cfg.Discover = rm.Discover
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Discoverer{cfg: cfg, logger: logger, done: make(chan struct{})}
}

// RunOnce performs one round and registers every supported device that
// replied. Devices already known by address or MAC are left untouched.
//
// Returns:
//   - int: Number of newly registered devices
//   - error: If the round could not run
func (d *Discoverer) RunOnce(ctx context.Context) (int, error) {
	infos, err := d.cfg.Discover(ctx, d.cfg.Options)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, info := range infos {
		if !rm.Supported(info.Type) {
			d.logger.Debug("ignoring unsupported device",
				"address", info.Host,
				"type", info.Type,
			)
			continue
		}
		if info.Locked {
			d.logger.Warn("device is locked and may reject commands", "address", info.Host)
		}

		dev := rm.New(info, d.cfg.Transport)
		if _, ok := d.cfg.Registry.Register(dev.Identity(), dev); ok {
			added++
		}
	}

	d.logger.Debug("discovery round finished", "replies", len(infos), "registered", added)
	return added, nil
}

// Start runs a round immediately, then one per interval until Stop or ctx
// cancellation.
func (d *Discoverer) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.loop(ctx)
}

// Stop ends the loop and waits for an in-flight round. Safe to call
// multiple times.
func (d *Discoverer) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Discoverer) loop(ctx context.Context) {
	defer d.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	d.round(ctx)
	if d.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.round(ctx)
		}
	}
}

func (d *Discoverer) round(ctx context.Context) {
	if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
		d.logger.Warn("discovery round failed", "error", err)
	}
}
