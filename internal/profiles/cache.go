// Package profiles keeps the CPU profiles and heap snapshots collected from debug targets.
package profiles

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/klauspost/compress/zstd"
)

type Kind string

const (
	CPU  Kind = "CPU"
	HEAP Kind = "HEAP"
)

// ParseKind accepts the kind names used by the front end and by the engine.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case CPU, HEAP:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown profile kind '%s'", s)
	}
}

type Header struct {
	Kind  Kind
	UID   int
	Title string
}

type key struct {
	kind Kind
	uid  int
}

type entry struct {
	header Header

	// Compressed payload; nil when only the header is known.
	payload []byte
}

// Cache is a store of profile payloads keyed by kind and uid.
//
// Uids share one namespace per kind between the ones allocated locally (NextUID)
// and the ones reported by a target (GotHeader, Store). A uid is never handed out twice,
// even after the cache is cleared.
type Cache struct {
	lock    *sync.Mutex
	next    map[Kind]int
	entries map[key]*entry

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewCache() (*Cache, error) {
	encoder, encErr := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if encErr != nil {
		return nil, fmt.Errorf("could not create profile compressor: %w", encErr)
	}
	decoder, decErr := zstd.NewReader(nil)
	if decErr != nil {
		return nil, fmt.Errorf("could not create profile decompressor: %w", decErr)
	}

	return &Cache{
		lock:    &sync.Mutex{},
		next:    map[Kind]int{CPU: 1, HEAP: 1},
		entries: make(map[key]*entry),
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// NextUID allocates a new uid for the given kind. Uids start at 1.
func (c *Cache) NextUID(kind Kind) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	uid := c.nextLocked(kind)
	c.next[kind] = uid + 1
	return uid
}

// GotHeader records a profile that exists on the target, without its payload.
func (c *Cache) GotHeader(kind Kind, uid int, title string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.observeLocked(kind, uid)
	k := key{kind, uid}
	if e, found := c.entries[k]; found {
		e.header.Title = title
		return
	}
	c.entries[k] = &entry{header: Header{Kind: kind, UID: uid, Title: title}}
}

// Store records the profile together with its (uncompressed) payload.
func (c *Cache) Store(kind Kind, uid int, title string, payload []byte) {
	compressed := c.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/4))

	c.lock.Lock()
	defer c.lock.Unlock()

	c.observeLocked(kind, uid)
	c.entries[key{kind, uid}] = &entry{
		header:  Header{Kind: kind, UID: uid, Title: title},
		payload: compressed,
	}
}

// Get returns the payload of the profile. The second return value is false if the payload
// is not in the cache, even if the header is.
func (c *Cache) Get(kind Kind, uid int) ([]byte, bool, error) {
	c.lock.Lock()
	e, found := c.entries[key{kind, uid}]
	var compressed []byte
	if found {
		compressed = e.payload
	}
	c.lock.Unlock()

	if compressed == nil {
		return nil, false, nil
	}

	payload, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("cached %s profile %d is corrupted: %w", kind, uid, err)
	}
	return payload, true, nil
}

// Header returns the header of the profile, if known.
func (c *Cache) Header(kind Kind, uid int) (Header, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	e, found := c.entries[key{kind, uid}]
	if !found {
		return Header{}, false
	}
	return e.header, true
}

// Headers returns the headers of all known profiles, ordered by kind and uid.
func (c *Cache) Headers() []Header {
	c.lock.Lock()
	defer c.lock.Unlock()

	retval := make([]Header, 0, len(c.entries))
	for _, e := range c.entries {
		retval = append(retval, e.header)
	}
	slices.SortFunc(retval, func(a, b Header) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.UID, b.UID))
	})
	return retval
}

func (c *Cache) Remove(kind Kind, uid int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.entries, key{kind, uid})
}

// Clear forgets all profiles. Uid allocation continues where it left off.
func (c *Cache) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries = make(map[key]*entry)
}

func (c *Cache) nextLocked(kind Kind) int {
	n, found := c.next[kind]
	if !found || n < 1 {
		return 1
	}
	return n
}

func (c *Cache) observeLocked(kind Kind, uid int) {
	if uid >= c.nextLocked(kind) {
		c.next[kind] = uid + 1
	}
}
