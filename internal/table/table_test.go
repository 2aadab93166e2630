package table

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proxyscope/internal/engine"
	"github.com/proxyscope/internal/proxy"
	"github.com/proxyscope/internal/storage"
)

func newTestTable() *Table {
	return New(nil, nil, 0)
}

func TestAddDeduplicates(t *testing.T) {
	tbl := newTestTable()

	id1, added := tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080})
	require.True(t, added)

	id2, added := tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080, Username: "alice"})
	require.False(t, added)
	require.Equal(t, id1, id2)

	id3, added := tbl.Add(proxy.Proxy{Host: "203.0.113.8", Port: 8080})
	require.True(t, added)
	require.NotEqual(t, id1, id3)

	require.Equal(t, 2, tbl.Len())
}

func TestImportAndExport(t *testing.T) {
	tbl := newTestTable()

	input := "203.0.113.7:8080\n# comment\n203.0.113.8:3128:alice:s3cret\n203.0.113.7:8080\nbroken\n"
	added, duplicates, err := tbl.Import(strings.NewReader(input), ":")
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Equal(t, 1, duplicates)

	var sb strings.Builder
	require.NoError(t, tbl.Export(&sb, ":"))
	require.Equal(t, "203.0.113.7:8080\n203.0.113.8:3128:alice:s3cret\n", sb.String())
}

func TestTargetsCarryRowIDs(t *testing.T) {
	tbl := newTestTable()
	idA, _ := tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080})
	idB, _ := tbl.Add(proxy.Proxy{Host: "203.0.113.8", Port: 1080, Kind: proxy.KindSOCKS5})

	targets := tbl.Targets()
	require.Len(t, targets, 2)
	require.Equal(t, idA, targets[0].Row)
	require.Equal(t, "203.0.113.7", targets[0].Proxy.Host)
	require.Equal(t, idB, targets[1].Row)
	require.Equal(t, proxy.KindSOCKS5, targets[1].Proxy.Kind)
}

func TestOnResultScrapeMergesAndDeduplicates(t *testing.T) {
	tbl := newTestTable()
	tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080})

	tbl.OnResult(engine.ResultEvent{
		Action: engine.ActionScrape,
		Proxies: []proxy.Proxy{
			{Host: "203.0.113.7", Port: 8080},
			{Host: "203.0.113.9", Port: 3128},
		},
	})

	require.Equal(t, 2, tbl.Len())
}

func TestOnResultCheckUpdatesRow(t *testing.T) {
	tbl := newTestTable()
	id, _ := tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080})

	tbl.OnResult(engine.ResultEvent{
		Action: engine.ActionCheck,
		Row:    id,
		Check:  &engine.CheckData{Kind: proxy.KindHTTP, Anon: proxy.AnonElite, Speed: 0.25},
	})

	rows := tbl.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, proxy.KindHTTP, rows[0].Proxy.Kind)
	require.Equal(t, proxy.AnonElite, rows[0].Proxy.Anon)
	require.Equal(t, 0.25, rows[0].Proxy.Speed)
	require.Empty(t, rows[0].Proxy.Status)
}

func TestOnResultCheckFailureRecordsStatus(t *testing.T) {
	tbl := newTestTable()
	id, _ := tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080, Anon: proxy.AnonElite, Speed: 0.5})

	tbl.OnResult(engine.ResultEvent{
		Action:  engine.ActionCheck,
		Row:     id,
		Message: "proxy 203.0.113.7:8080: connection refused",
	})

	rows := tbl.Rows()
	require.Equal(t, proxy.AnonUnknown, rows[0].Proxy.Anon)
	require.Zero(t, rows[0].Proxy.Speed)
	require.Contains(t, rows[0].Proxy.Status, "connection refused")
}

func TestOnResultCheckIgnoresRemovedRow(t *testing.T) {
	tbl := newTestTable()
	id, _ := tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080})
	tbl.RemoveRows([]int{id})

	// A late result for a removed row must not panic or resurrect it
	tbl.OnResult(engine.ResultEvent{
		Action: engine.ActionCheck,
		Row:    id,
		Check:  &engine.CheckData{Kind: proxy.KindHTTP},
	})
	require.Zero(t, tbl.Len())
}

func TestOnStatusClearsStaleObservations(t *testing.T) {
	tbl := newTestTable()
	id, _ := tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080, Anon: proxy.AnonElite, Speed: 0.5, Status: "old error"})

	tbl.OnStatus(engine.StatusEvent{Action: engine.ActionCheck, Row: id})

	rows := tbl.Rows()
	require.Equal(t, proxy.AnonUnknown, rows[0].Proxy.Anon)
	require.Zero(t, rows[0].Proxy.Speed)
	require.Empty(t, rows[0].Proxy.Status)
}

func TestRemoveRowsAndClear(t *testing.T) {
	tbl := newTestTable()
	idA, _ := tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080})
	idB, _ := tbl.Add(proxy.Proxy{Host: "203.0.113.8", Port: 8080})

	require.Equal(t, 1, tbl.RemoveRows([]int{idA, 9999}))
	require.Equal(t, 1, tbl.Len())

	// The surviving row keeps its id
	targets := tbl.Targets()
	require.Equal(t, idB, targets[0].Row)

	tbl.Clear()
	require.Zero(t, tbl.Len())
	require.Empty(t, tbl.Rows())
}

func TestOnBatchFinishedRecordsSummary(t *testing.T) {
	tbl := newTestTable()

	_, ok := tbl.LastBatch()
	require.False(t, ok)

	tbl.OnBatchFinished(engine.BatchSummary{
		Action:  engine.ActionCheck,
		Total:   10,
		Done:    10,
		Elapsed: 2 * time.Second,
	})

	last, ok := tbl.LastBatch()
	require.True(t, ok)
	require.Equal(t, engine.ActionCheck, last.Action)
	require.Equal(t, 10, last.Done)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.json")
	store, err := storage.NewFileStorage(path)
	require.NoError(t, err)
	defer store.Close()

	tbl := New(store, nil, 0)
	tbl.Add(proxy.Proxy{Host: "203.0.113.7", Port: 8080, Kind: proxy.KindHTTP})
	tbl.Add(proxy.Proxy{Host: "203.0.113.8", Port: 1080})
	tbl.Close()

	restored := New(store, nil, 0)
	require.NoError(t, restored.LoadFromStorage())
	require.Equal(t, 2, restored.Len())

	require.Equal(t, proxy.KindHTTP, restored.Rows()[0].Proxy.Kind)
}
