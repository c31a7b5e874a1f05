package refresh

// OnRelease observes the arrival sequence number of each waiter as it is released
func OnRelease(c *Coordinator, fn func(seq uint64)) {
	c.released = fn
}
