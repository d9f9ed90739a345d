package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersAccumulate(t *testing.T) {
	r := NewRun()
	r.AddKeywords(3)
	r.AddVector(10, 6)
	r.AddVector(2, 1)
	r.AddWebResults(8)
	r.AddURLCacheHit()
	r.AddAliasHit()
	r.AddTitleDuplicate()
	r.AddResolved()
	r.AddUnresolved()
	r.AddSummarized()
	r.AddSummarizeSkipped()
	r.AddKeywordPages("food seoul", 4)
	r.AddKeywordPages("museums seoul", 2)
	r.AddRerank(5, 2)
	r.AddRerankDrops([]DroppedCandidate{{Title: "Weak Match", Score: 0.31}})
	r.AddMergeDuplicates(1, 2)
	r.SetFinalCount(11)

	s := r.Snapshot()
	assert.Equal(t, 3, s.KeywordsExpanded)
	assert.Equal(t, 12, s.VectorHits)
	assert.Equal(t, 7, s.VectorKept)
	assert.Equal(t, 8, s.WebResults)
	assert.Equal(t, map[string]int{"food seoul": 4, "museums seoul": 2}, s.KeywordPages)
	assert.Equal(t, 1, s.URLCacheHits)
	assert.Equal(t, 5, s.RerankKept)
	assert.Equal(t, 2, s.RerankDropped)
	assert.Equal(t, []DroppedCandidate{{Title: "Weak Match", Score: 0.31}}, s.RerankDrops)
	assert.Equal(t, 1, s.MergeWebDuplicates)
	assert.Equal(t, 2, s.MergeCrossDuplicates)
	assert.Equal(t, 3, s.MergedDuplicates)
	assert.Equal(t, 11, s.FinalCount)
	assert.False(t, s.EarlyTerminated)
}

func TestStageTiming(t *testing.T) {
	r := NewRun()
	done := r.Stage("web_search")
	done()

	s := r.Snapshot()
	_, ok := s.StageDurations["web_search"]
	assert.True(t, ok)
}

func TestConcurrentUpdates(t *testing.T) {
	r := NewRun()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AddAliasHit()
			r.AddRerank(1, 1)
		}()
	}
	wg.Wait()

	s := r.Snapshot()
	assert.Equal(t, 50, s.AliasHits)
	assert.Equal(t, 50, s.RerankKept)
}

func TestReport(t *testing.T) {
	r := NewRun()
	r.AddKeywords(2)
	r.AddKeywordPages("food seoul", 3)
	r.AddRerankDrops([]DroppedCandidate{{Title: "Weak Match", Score: 0.31}})
	r.MarkEarlyTermination(4, 2)
	r.AddMergeDuplicates(1, 1)
	r.SetFinalCount(7)
	done := r.Stage("merge")
	done()

	report := r.Report()
	assert.Contains(t, report, "keywords expanded:   2")
	assert.Contains(t, report, "food seoul")
	assert.Contains(t, report, `dropped "Weak Match" (0.31)`)
	assert.Contains(t, report, "early termination:   yes (checked 4, skipped 2)")
	assert.Contains(t, report, "web-internal 1, web-to-embedding 1")
	assert.Contains(t, report, "final count:         7")
	assert.Contains(t, report, "merge")
}

func TestSnapshotIsolation(t *testing.T) {
	r := NewRun()
	done := r.Stage("s")
	done()

	s := r.Snapshot()
	s.StageDurations["s"] = 0
	s2 := r.Snapshot()
	assert.NotZero(t, s2.StageDurations["s"])
}
