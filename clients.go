package offcache

import "sync"

// Clients is the client registration set: the open pages and the generation
// controlling each one. An empty controller means the page is uncontrolled
// and talks to the network directly.
type Clients struct {
	mu sync.RWMutex
	m  map[string]string // client id -> controlling version
}

func NewClients() *Clients {
	return &Clients{m: make(map[string]string)}
}

// Add registers id under controller, replacing an earlier registration.
func (c *Clients) Add(id, controller string) {
	c.mu.Lock()
	c.m[id] = controller
	c.mu.Unlock()
}

// Remove unregisters id and reports whether it was registered.
func (c *Clients) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[id]; !ok {
		return false
	}
	delete(c.m, id)
	return true
}

// Controller returns the version controlling id.
func (c *Clients) Controller(id string) (version string, ok bool) {
	c.mu.RLock()
	version, ok = c.m[id]
	c.mu.RUnlock()
	return version, ok
}

// Claim moves every registered client under version and returns how many
// changed controller.
func (c *Clients) Claim(version string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, cur := range c.m {
		if cur != version {
			c.m[id] = version
			n++
		}
	}
	return n
}

// ControlledBy counts the clients controlled by version.
func (c *Clients) ControlledBy(version string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, cur := range c.m {
		if cur == version {
			n++
		}
	}
	return n
}

func (c *Clients) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
