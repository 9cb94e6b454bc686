package cache

// startMaintenance launches the periodic expiry sweep and the lower-frequency
// efficiency recomputation. Both acquire the same write lock as ordinary
// mutations; each one is just another client of the removal path.
func (c *Cache) startMaintenance() {
	if c.config.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}
	if c.config.EfficiencyInterval > 0 {
		c.wg.Add(1)
		go c.efficiencyLoop()
	}
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()

	ticker := c.clock.Ticker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.SweepExpired(); removed > 0 {
				c.logger.Infow("Removed expired cache entries", "count", removed)
			}
		case <-c.stopChan:
			return
		}
	}
}

func (c *Cache) efficiencyLoop() {
	defer c.wg.Done()

	ticker := c.clock.Ticker(c.config.EfficiencyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			rate := c.stats.refreshHitRate()
			c.mu.Unlock()
			c.logger.Debugw("Recomputed cache efficiency", "hit_rate", rate)
		case <-c.stopChan:
			return
		}
	}
}

// SweepExpired removes every expired entry through the unified removal path
// and returns how many were dropped. The periodic sweep calls this; it is
// exported so callers can force a sweep, e.g. before exporting.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			c.removeLocked(key)
			c.stats.ttlEvictions++
			removed++
		}
	}
	return removed
}
