// Package dictionary holds the static drug-name reference set used for the local match pass.
package dictionary

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// ErrEmptyDictionary is returned when a source yields no usable names.
var ErrEmptyDictionary = errors.New("dictionary has no names")

// Dictionary is a read-only set of drug display names indexed by their lower-cased form.
// It is safe for concurrent readers once built.
type Dictionary struct {
	trie  *patricia.Trie
	names []string
	mu    sync.RWMutex
}

// New builds a dictionary from display names. Blank names are skipped and names that
// normalize to the same key keep the first display form seen.
func New(names []string) *Dictionary {
	d := &Dictionary{trie: patricia.NewTrie()}
	for _, name := range names {
		d.add(name)
	}
	log.Debugf("Dictionary built with %d names", len(d.names))
	return d
}

func (d *Dictionary) add(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	key := patricia.Prefix(strings.ToLower(name))
	if !d.trie.Insert(key, name) {
		return false
	}
	d.names = append(d.names, name)
	return true
}

// Extend adds names to an existing dictionary and returns how many were new.
func (d *Dictionary) Extend(names []string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	added := 0
	for _, name := range names {
		if d.add(name) {
			added++
		}
	}
	return added
}

// Len returns the number of distinct names.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}

// Names returns a sorted copy of every display name.
func (d *Dictionary) Names() []string {
	d.mu.RLock()
	out := make([]string, len(d.names))
	copy(out, d.names)
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Match returns the names whose lower-cased form starts with normQuery and, separately,
// the names that only contain it. normQuery must already be lower-cased.
// Neither slice is ordered.
func (d *Dictionary) Match(normQuery string) (prefix, contains []string) {
	if normQuery == "" {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	err := d.trie.VisitSubtree(patricia.Prefix(normQuery), func(_ patricia.Prefix, item patricia.Item) error {
		prefix = append(prefix, item.(string))
		return nil
	})
	if err != nil {
		log.Errorf("Error visiting dictionary subtree: %v", err)
	}

	err = d.trie.Visit(func(p patricia.Prefix, item patricia.Item) error {
		key := string(p)
		if strings.HasPrefix(key, normQuery) {
			return nil
		}
		if strings.Contains(key, normQuery) {
			contains = append(contains, item.(string))
		}
		return nil
	})
	if err != nil {
		log.Errorf("Error visiting dictionary: %v", err)
	}

	return prefix, contains
}

// Stats reports dictionary size in the same shape the suggester reports its counters.
func (d *Dictionary) Stats() map[string]int {
	return map[string]int{"dictionaryNames": d.Len()}
}
