package tuner

import "sync"

// RowCache maps normalized channel names to grid row indexes, per site.
// It is populated as a side effect of every snapshot read during a grid
// search, because each read observes many rows at once. Entries are evicted
// individually on a confirmed miss; the whole cache is cleared when the
// browser session restarts.
type RowCache struct {
	mu    sync.Mutex
	sites map[string]map[string]int
}

func NewRowCache() *RowCache {
	return &RowCache{sites: make(map[string]map[string]int)}
}

func (c *RowCache) Get(site, name string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.sites[site][name]
	return row, ok
}

func (c *RowCache) Put(site, name string, row int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.sites[site]
	if !ok {
		rows = make(map[string]int)
		c.sites[site] = rows
	}
	rows[name] = row
}

// Evict removes a single stale entry after a confirmed miss.
func (c *RowCache) Evict(site, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sites[site], name)
}

// Clear drops every entry for every site.
func (c *RowCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sites = make(map[string]map[string]int)
}

// Len reports the total number of cached rows across sites.
func (c *RowCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, rows := range c.sites {
		n += len(rows)
	}
	return n
}

// URLCache holds, per site, one discovered guide destination URL plus a
// per-channel watch URL map. At most one rediscovery is spent per tune when
// the destination turns out stale; watch URLs back the direct-URL skip-ahead.
type URLCache struct {
	mu    sync.Mutex
	dest  map[string]string
	watch map[string]map[string]string
}

func NewURLCache() *URLCache {
	return &URLCache{
		dest:  make(map[string]string),
		watch: make(map[string]map[string]string),
	}
}

func (c *URLCache) Dest(site string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.dest[site]
	return u, ok
}

func (c *URLCache) PutDest(site, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dest[site] = url
}

func (c *URLCache) InvalidateDest(site string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dest, site)
}

func (c *URLCache) Watch(site, channel string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.watch[site][channel]
	return u, ok
}

func (c *URLCache) PutWatch(site, channel, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	urls, ok := c.watch[site]
	if !ok {
		urls = make(map[string]string)
		c.watch[site] = urls
	}
	urls[channel] = url
}

func (c *URLCache) InvalidateWatch(site, channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.watch[site], channel)
}

// Clear drops every destination and watch URL for every site.
func (c *URLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dest = make(map[string]string)
	c.watch = make(map[string]map[string]string)
}
