// Package table is the result sink of the engine: a row-addressed proxy
// table that deduplicates scraped candidates, merges check observations
// and persists itself through a storage backend. Rows are handed to the
// engine as opaque handles and written back when results arrive.
package table

import (
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/proxyscope/internal/engine"
	"github.com/proxyscope/internal/metrics"
	"github.com/proxyscope/internal/proxy"
	"github.com/proxyscope/internal/storage"
)

// Row pairs a table row id with its proxy.
type Row struct {
	ID    int         `json:"id"`
	Proxy proxy.Proxy `json:"proxy"`
}

type Table struct {
	mu       sync.RWMutex
	set      *proxy.Set
	rowByKey map[proxy.Key]int
	keyByRow map[int]proxy.Key
	nextRow  int
	last     *engine.BatchSummary

	storage   storage.Storage
	collector *metrics.Collector

	persistMu       sync.Mutex
	persistInterval time.Duration
	stopPersist     chan struct{}
}

func New(store storage.Storage, collector *metrics.Collector, persistIntervalSeconds int) *Table {
	t := &Table{
		set:             proxy.NewSet(),
		rowByKey:        make(map[proxy.Key]int),
		keyByRow:        make(map[int]proxy.Key),
		storage:         store,
		collector:       collector,
		persistInterval: time.Duration(persistIntervalSeconds) * time.Second,
		stopPersist:     make(chan struct{}),
	}

	if store != nil && persistIntervalSeconds > 0 {
		go t.periodicPersist()
	}

	return t
}

// Add inserts a proxy unless its (host, port) identity is already
// present. Returns the row id and whether the proxy was added.
func (t *Table) Add(p proxy.Proxy) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(p)
}

func (t *Table) addLocked(p proxy.Proxy) (int, bool) {
	k := p.Key()
	if id, exists := t.rowByKey[k]; exists {
		return id, false
	}

	t.set.Add(p)
	id := t.nextRow
	t.nextRow++
	t.rowByKey[k] = id
	t.keyByRow[id] = k
	return id, true
}

// Import reads the flat text format and adds every parseable line.
// Returns how many proxies were added and how many parsed lines were
// duplicates.
func (t *Table) Import(r io.Reader, delim string) (added, duplicates int, err error) {
	proxies, err := proxy.ReadList(r, delim)
	if err != nil {
		return 0, 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range proxies {
		if _, ok := t.addLocked(p); ok {
			added++
		} else {
			duplicates++
		}
	}
	t.updateGaugeLocked()

	return added, duplicates, nil
}

// Export writes the table in the flat text format.
func (t *Table) Export(w io.Writer, delim string) error {
	t.mu.RLock()
	proxies := t.set.All()
	t.mu.RUnlock()
	return proxy.WriteList(w, proxies, delim)
}

// Rows returns the table content in insertion order.
func (t *Table) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows := make([]Row, 0, t.set.Len())
	for _, p := range t.set.All() {
		rows = append(rows, Row{ID: t.rowByKey[p.Key()], Proxy: p})
	}
	return rows
}

// Targets returns every row as a check target for the engine.
func (t *Table) Targets() []engine.CheckTarget {
	t.mu.RLock()
	defer t.mu.RUnlock()

	targets := make([]engine.CheckTarget, 0, t.set.Len())
	for _, p := range t.set.All() {
		targets = append(targets, engine.CheckTarget{Row: t.rowByKey[p.Key()], Proxy: p})
	}
	return targets
}

// RemoveRows deletes the given rows, returning how many existed.
func (t *Table) RemoveRows(ids []int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, id := range ids {
		k, exists := t.keyByRow[id]
		if !exists {
			continue
		}
		t.set.Remove(k)
		delete(t.keyByRow, id)
		delete(t.rowByKey, k)
		removed++
	}
	t.updateGaugeLocked()
	return removed
}

// Clear empties the table.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.set.Clear()
	t.rowByKey = make(map[proxy.Key]int)
	t.keyByRow = make(map[int]proxy.Key)
	t.updateGaugeLocked()
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.set.Len()
}

// LastBatch returns the summary of the most recently finished batch.
func (t *Table) LastBatch() (engine.BatchSummary, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return engine.BatchSummary{}, false
	}
	return *t.last, true
}

// OnStatus clears stale check observations for the row about to be
// probed.
func (t *Table) OnStatus(ev engine.StatusEvent) {
	if ev.Action != engine.ActionCheck {
		return
	}
	id, ok := ev.Row.(int)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k, exists := t.keyByRow[id]
	if !exists {
		return
	}
	p, _ := t.set.Get(k)
	p.Anon = proxy.AnonUnknown
	p.Speed = 0
	p.Status = ""
	t.set.Update(p)
}

// OnResult merges one work item's outcome into the table.
func (t *Table) OnResult(ev engine.ResultEvent) {
	switch ev.Action {
	case engine.ActionScrape:
		t.mergeScrape(ev)
	case engine.ActionCheck:
		t.mergeCheck(ev)
	}
	if ev.Message != "" {
		log.Info(ev.Message)
	}
}

func (t *Table) mergeScrape(ev engine.ResultEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range ev.Proxies {
		if _, ok := t.addLocked(p); ok {
			log.Debugf("Added proxy %s", p.Addr())
		} else {
			log.Debugf("Skipped duplicate proxy %s", p.Addr())
		}
	}
	t.updateGaugeLocked()
}

func (t *Table) mergeCheck(ev engine.ResultEvent) {
	id, ok := ev.Row.(int)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k, exists := t.keyByRow[id]
	if !exists {
		return
	}
	p, _ := t.set.Get(k)

	if ev.Check != nil {
		p.Kind = ev.Check.Kind
		p.Anon = ev.Check.Anon
		p.Speed = ev.Check.Speed
		p.Status = ""
	} else {
		p.Anon = proxy.AnonUnknown
		p.Speed = 0
		p.Status = ev.Message
	}
	t.set.Update(p)
}

// OnBatchFinished records the summary and persists the table.
func (t *Table) OnBatchFinished(s engine.BatchSummary) {
	t.mu.Lock()
	summary := s
	t.last = &summary
	t.mu.Unlock()

	if t.collector != nil {
		t.collector.RecordBatch(string(s.Action), s.Cancelled)
	}

	if t.storage != nil {
		go t.persist()
	}
}

func (t *Table) updateGaugeLocked() {
	if t.collector != nil {
		t.collector.SetProxiesKnown(t.set.Len())
	}
}

// LoadFromStorage restores the table from the last saved snapshot.
func (t *Table) LoadFromStorage() error {
	if t.storage == nil {
		return nil
	}

	snap, err := t.storage.Load()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		log.Info("No saved proxies in storage")
		return nil
	}

	t.mu.Lock()
	for _, p := range snap.Proxies {
		t.addLocked(p)
	}
	t.updateGaugeLocked()
	count := t.set.Len()
	t.mu.Unlock()

	log.Infof("Loaded %d proxies from storage", count)
	return nil
}

func (t *Table) snapshot() *storage.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &storage.Snapshot{
		Proxies: t.set.All(),
		Updated: time.Now(),
	}
}

func (t *Table) persist() {
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	snap := t.snapshot()
	if err := t.storage.Save(snap); err != nil {
		log.Errorf("Failed to persist proxy table: %v", err)
	} else {
		log.Debugf("Proxy table persisted: %d proxies", len(snap.Proxies))
	}
}

func (t *Table) periodicPersist() {
	ticker := time.NewTicker(t.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.persist()
		case <-t.stopPersist:
			return
		}
	}
}

// Close stops background persistence and saves a final snapshot.
func (t *Table) Close() {
	close(t.stopPersist)
	if t.storage != nil {
		t.persist()
	}
}
