package mempool

// Evict removes the lowest-fee transactions until the pool holds at most
// maxSize entries. It returns the number removed.
func (p *Pool) Evict(maxSize int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.txs) <= maxSize {
		return 0
	}

	entries := p.sortedLocked()
	evicted := 0
	for i := len(entries) - 1; i >= 0 && len(p.txs) > maxSize; i-- {
		p.removeLocked(entries[i].txHash)
		evicted++
	}
	return evicted
}

// Resize changes the capacity and evicts down to it.
func (p *Pool) Resize(maxSize int) int {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	p.mu.Lock()
	p.maxSize = maxSize
	p.mu.Unlock()
	return p.Evict(maxSize)
}
