//
//  Copyright © Manetu Inc. All rights reserved.
//

package grants

import (
	"context"

	"github.com/caseaccess/accessengine/pkg/core/clock"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Sweeper periodically evicts expired grants from a Cache.  Expiry is
// enforced on every read regardless, so the sweep only bounds cache size.
type Sweeper struct {
	cache Cache
	clock clock.Clock
	cron  *cron.Cron
	// OnSweep, when set, observes the number of grants each run dropped.
	OnSweep func(dropped int)
}

// NewSweeper schedules Run on spec, a standard cron expression or a
// descriptor such as "@every 5m".
func NewSweeper(cache Cache, clk clock.Clock, spec string) (*Sweeper, error) {
	s := &Sweeper{
		cache: cache,
		clock: clk,
		cron:  cron.New(),
	}
	if _, err := s.cron.AddFunc(spec, s.Run); err != nil {
		return nil, errors.Wrapf(err, "invalid sweep schedule %q", spec)
	}
	return s, nil
}

// Run performs one sweep.
func (s *Sweeper) Run() {
	dropped := s.cache.Sweep(context.Background(), s.clock.Now())
	if dropped > 0 {
		logger.SysDebugf("swept %d inactive grants from cache", dropped)
	}
	if s.OnSweep != nil {
		s.OnSweep(dropped)
	}
}

// Start begins the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
