package mapview

import (
	"context"
	"errors"
	"time"

	"github.com/yegors/co-track/internal/telemetry"
	"github.com/yegors/co-track/pkg/logger"
)

// Start runs the MapView loop until Stop is called or ctx is done
func (v *MapView) Start(ctx context.Context) error {
	if !v.state.CompareAndSwap(stateIdle, stateRunning) {
		return errors.New("map view already started")
	}

	v.loopCtx, v.cancel = context.WithCancel(ctx)

	v.logger.Info("Starting map view",
		logger.Duration("poll_interval", v.opts.PollInterval),
		logger.Bool("follow", v.opts.FollowEnabled))

	v.wg.Add(1)
	go v.run()
	return nil
}

// Stop halts the ticker, waits for the loop to exit and drops later posts
func (v *MapView) Stop() {
	v.halt()
	if v.cancel != nil {
		v.cancel()
	}
	v.wg.Wait()
	v.logger.Info("Map view stopped")
}

// halt moves to the stopped state so later posts are dropped
func (v *MapView) halt() {
	v.state.Store(stateStopped)
	v.stopOnce.Do(func() {
		close(v.stopCh)
	})
}

func (v *MapView) run() {
	defer v.wg.Done()
	defer v.halt()

	ticker := time.NewTicker(v.opts.PollInterval)
	defer ticker.Stop()

	var refresh <-chan time.Time
	if v.opts.AirportRefresh > 0 {
		t := time.NewTicker(v.opts.AirportRefresh)
		defer t.Stop()
		refresh = t.C
	}

	v.tick()
	for {
		select {
		case <-v.stopCh:
			return
		case <-v.loopCtx.Done():
			return
		case <-ticker.C:
			v.tick()
		case <-refresh:
			v.MarkAirports(v.opts.AirportRadiusNM)
		case fn := <-v.posts:
			fn()
		}
	}
}

// post schedules fn on the loop. Before Start it runs inline, after Stop it is dropped.
func (v *MapView) post(fn func()) {
	switch v.state.Load() {
	case stateIdle:
		fn()
	case stateRunning:
		select {
		case v.posts <- fn:
		case <-v.stopCh:
		}
	}
}

// Call runs fn on the loop and waits for it to finish
func (v *MapView) Call(ctx context.Context, fn func()) error {
	switch v.state.Load() {
	case stateIdle:
		fn()
		return nil
	case stateStopped:
		return ErrStopped
	}

	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case v.posts <- wrapped:
	case <-v.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-v.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post schedules fn on the loop without waiting
func (v *MapView) Post(fn func()) {
	v.post(fn)
}

// tick starts a telemetry fetch unless one is already in flight
func (v *MapView) tick() {
	if v.source == nil || v.fetching {
		return
	}
	v.fetching = true

	known := v.upstreamKnown
	gen := v.routeGen
	ctx := v.loopCtx
	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, v.opts.FetchTimeout)
		defer cancel()

		batch, err := v.source.Fetch(fetchCtx, known)
		v.post(func() {
			v.fetching = false
			if gen != v.routeGen {
				v.logger.Debug("Discarding telemetry requested before route clear")
				return
			}
			v.applyBatch(batch, err)
		})
	}()
}

// applyBatch ingests a telemetry result. A changed upstream route id means
// the upstream route was reset, so the local one is cleared too.
func (v *MapView) applyBatch(batch telemetry.Batch, err error) {
	if err != nil {
		if errors.Is(err, telemetry.ErrNoData) || errors.Is(err, context.Canceled) {
			v.logger.Debug("No telemetry this tick", logger.Error(err))
			return
		}
		v.logger.Warn("Telemetry fetch failed", logger.Error(err))
		return
	}

	if batch.RouteID != "" && batch.RouteID != v.upstreamID {
		previous := v.upstreamID
		v.upstreamID = batch.RouteID
		if previous != "" {
			v.logger.Info("Upstream route changed",
				logger.String("previous", previous),
				logger.String("route_id", batch.RouteID))
			v.ClearRoute()
			// the batch was requested against the old route, refetch from zero
			v.upstreamKnown = 0
			return
		}
	}

	for _, s := range batch.Points {
		v.Apply(s)
	}
	v.upstreamKnown += len(batch.Points)
}
