package task

// closedCh is returned to waiters of tags that have no live tasks
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// tagCounters tracks the number of live tasks per tag and the channels that
// waiters block on until a tag drains. Entries are removed as soon as a tag
// reaches zero, so an unknown tag and a drained tag are indistinguishable.
// It is not safe for concurrent use; the pool guards it with its mutex.
type tagCounters struct {
	counts  map[string]int
	drained map[string]chan struct{}
}

func newTagCounters() *tagCounters {
	return &tagCounters{
		counts:  make(map[string]int),
		drained: make(map[string]chan struct{}),
	}
}

// inc records a newly submitted task under tag
func (c *tagCounters) inc(tag string) {
	c.counts[tag]++
}

// dec records the completion of a task under tag and wakes waiters once the
// tag has no live tasks left
func (c *tagCounters) dec(tag string) {
	n, ok := c.counts[tag]
	if !ok {
		return
	}
	if n > 1 {
		c.counts[tag] = n - 1
		return
	}

	delete(c.counts, tag)
	if ch, ok := c.drained[tag]; ok {
		close(ch)
		delete(c.drained, tag)
	}
}

// get returns the live count for tag, 0 for unknown tags
func (c *tagCounters) get(tag string) int {
	return c.counts[tag]
}

// tags returns the number of tags with live tasks
func (c *tagCounters) tags() int {
	return len(c.counts)
}

// waitCh returns a channel that is closed the next time tag has no live tasks
func (c *tagCounters) waitCh(tag string) <-chan struct{} {
	if c.counts[tag] == 0 {
		return closedCh
	}
	ch, ok := c.drained[tag]
	if !ok {
		ch = make(chan struct{})
		c.drained[tag] = ch
	}
	return ch
}
