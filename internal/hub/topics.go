package hub

import (
	"sort"
	"sync"
)

type subscriberSet struct {
	mu    sync.Mutex
	conns map[string]Conn
}

func (s *subscriberSet) add(c Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c.ID()]; ok {
		return false
	}
	s.conns[c.ID()] = c
	return true
}

func (s *subscriberSet) remove(c Conn) (removed bool, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c.ID()]; ok {
		delete(s.conns, c.ID())
		removed = true
	}
	return removed, len(s.conns) == 0
}

func (s *subscriberSet) snapshot() []Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *subscriberSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Topics maps a stream id to the connections subscribed to it.
//
// Inserts hold the table read lock so that a set is never detached (deleted
// when empty) while a concurrent Subscribe is adding to it; detaching takes
// the write lock.
type Topics struct {
	mu   sync.RWMutex
	sets map[string]*subscriberSet
}

func NewTopics() *Topics {
	return &Topics{sets: make(map[string]*subscriberSet)}
}

// Subscribe adds conn to topic. It reports false when conn was already there.
func (t *Topics) Subscribe(topic string, conn Conn) bool {
	topic = normalizeTopic(topic)

	t.mu.RLock()
	set, ok := t.sets[topic]
	if ok {
		added := set.add(conn)
		t.mu.RUnlock()
		return added
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok = t.sets[topic]
	if !ok {
		set = &subscriberSet{conns: make(map[string]Conn)}
		t.sets[topic] = set
	}
	return set.add(conn)
}

// Unsubscribe removes conn from every topic and returns the topics it left.
func (t *Topics) Unsubscribe(conn Conn) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var left []string
	for topic, set := range t.sets {
		removed, empty := set.remove(conn)
		if removed {
			left = append(left, topic)
		}
		if empty {
			delete(t.sets, topic)
		}
	}
	sort.Strings(left)
	return left
}

// Remove drops the single (topic, conn) relation.
func (t *Topics) Remove(topic string, conn Conn) bool {
	topic = normalizeTopic(topic)

	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.sets[topic]
	if !ok {
		return false
	}
	removed, empty := set.remove(conn)
	if empty {
		delete(t.sets, topic)
	}
	return removed
}

// SubscribersOf returns a snapshot; empty for an unknown topic.
func (t *Topics) SubscribersOf(topic string) []Conn {
	topic = normalizeTopic(topic)

	t.mu.RLock()
	set, ok := t.sets[topic]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return set.snapshot()
}

func (t *Topics) Count(topic string) int {
	topic = normalizeTopic(topic)

	t.mu.RLock()
	defer t.mu.RUnlock()
	set, ok := t.sets[topic]
	if !ok {
		return 0
	}
	return set.len()
}

// Total counts (topic, conn) relations, so a connection on two topics counts twice.
func (t *Topics) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, set := range t.sets {
		n += set.len()
	}
	return n
}

// Counts returns subscriber counts keyed by topic.
func (t *Topics) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.sets))
	for topic, set := range t.sets {
		out[topic] = set.len()
	}
	return out
}
