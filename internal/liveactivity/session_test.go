package liveactivity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileChange_MergeTracksMonotonicCounters(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := FileChange{
		FilePath:      "main.go",
		ChangeType:    ChangeModified,
		LinesAdded:    2,
		LinesRemoved:  1,
		FirstChangeAt: t0,
		LastChangeAt:  t0,
	}

	fc.Merge(FileChange{
		ChangeType:   ChangeModified,
		LinesAdded:   1,
		LinesRemoved: 5,
		LastChangeAt: t0.Add(time.Minute),
	})

	assert.Equal(t, 2, fc.LinesAdded, "should keep the higher of the two observations")
	assert.Equal(t, 5, fc.LinesRemoved)
}

func TestFileChange_MergeUpdatesChangeTypeOnlyFromLaterObservation(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := FileChange{ChangeType: ChangeAdded, FirstChangeAt: t0, LastChangeAt: t0}

	fc.Merge(FileChange{ChangeType: ChangeModified, LastChangeAt: t0.Add(time.Second)})
	assert.Equal(t, ChangeModified, fc.ChangeType)

	fc.Merge(FileChange{ChangeType: ChangeAdded, LastChangeAt: t0.Add(-time.Hour)})
	assert.Equal(t, ChangeModified, fc.ChangeType, "an earlier observation must not override the latest change type")
}

func TestFileChange_MergeKeepsEarliestFirstChangeAt(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fc := FileChange{FirstChangeAt: t0, LastChangeAt: t0}

	fc.Merge(FileChange{FirstChangeAt: t0.Add(-time.Minute), LastChangeAt: t0.Add(-time.Minute)})
	assert.True(t, fc.FirstChangeAt.Equal(t0.Add(-time.Minute)))
}

func TestFileChange_MergeCharacterCounters(t *testing.T) {
	fc := FileChange{CharactersAdded: 10, CharactersRemoved: 3}
	fc.Merge(FileChange{CharactersAdded: 4, CharactersRemoved: 20})

	assert.Equal(t, 10, fc.CharactersAdded)
	assert.Equal(t, 20, fc.CharactersRemoved)
}
