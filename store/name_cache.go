package store

import (
	"github.com/coocood/freecache"
	"github.com/vmihailenco/msgpack/v5"
)

type nameEntry struct {
	ID int64 `msgpack:"id"`
}

// nameCache slug 到类型 id 的有界缓存，nil 时所有操作都是空操作
type nameCache struct {
	cache *freecache.Cache
	ttl   int
}

func (c *nameCache) get(slug string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	buf, err := c.cache.Get([]byte(slug))
	if err != nil {
		return 0, false
	}
	var entry nameEntry
	if err := msgpack.Unmarshal(buf, &entry); err != nil {
		return 0, false
	}
	return entry.ID, true
}

func (c *nameCache) set(slug string, id int64) {
	if c == nil {
		return
	}
	buf, err := msgpack.Marshal(&nameEntry{ID: id})
	if err != nil {
		return
	}
	_ = c.cache.Set([]byte(slug), buf, c.ttl)
}

func (c *nameCache) del(slug string) {
	if c == nil {
		return
	}
	c.cache.Del([]byte(slug))
}
