package realtime

import (
	"net/url"
	"sync"
)

// StationKey is the Storage key holding the last used station id.
const StationKey = "stationId"

// Storage is a durable string key-value store. Get reports ok=false for an
// absent key.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryStorage is a process-local Storage, used when nothing durable is
// configured and in tests.
type MemoryStorage struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// stationFromQuery reads "station", then "stationId".
func stationFromQuery(q url.Values) string {
	if q == nil {
		return ""
	}
	if id := q.Get("station"); id != "" {
		return id
	}
	return q.Get("stationId")
}

// loadScope picks the initial station: query first, then storage. It
// reports whether the id came from the query and so still needs persisting.
func (c *Client) loadScope() (id string, fromQuery bool) {
	if id := stationFromQuery(c.query); id != "" {
		return id, true
	}
	id, ok, err := c.storage.Get(StationKey)
	if err != nil {
		c.logger.Warn("realtime: read persisted station failed", "err", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	return id, false
}

// persistScope writes the current station to storage, or removes the entry
// when there is none. It runs without c.mu so slow storage never stalls
// socket callbacks; persistMu keeps racing writers ordered and the latest
// scope always lands last.
func (c *Client) persistScope() {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	id := c.StationID()
	var err error
	if id == "" {
		err = c.storage.Delete(StationKey)
	} else {
		err = c.storage.Set(StationKey, id)
	}
	if err != nil {
		c.logger.Warn("realtime: persist station failed", "station", id, "err", err)
	}
}

// SetStation switches the station scope. Equal ids are a no-op. Otherwise
// the id is persisted (an empty id removes the persisted entry) and the
// station channel is torn down and redialled against the new scope, even if
// it was already connected. The events channel is not touched.
func (c *Client) SetStation(id string) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	changed := c.switchStationLocked(id)
	c.mu.Unlock()

	if changed {
		c.persistScope()
	}
	c.dispatch.drain()
	return nil
}

// switchStationLocked moves the scope to id and redials the station
// channel. Caller holds c.mu.
func (c *Client) switchStationLocked(id string) bool {
	if id == c.scope {
		return false
	}
	prev := c.scope
	c.scope = id
	c.logger.Info("realtime: station changed", "from", prev, "to", id)
	c.connectStationLocked(true)
	return true
}

// StationID returns the current station, or "" when none is set.
func (c *Client) StationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}
