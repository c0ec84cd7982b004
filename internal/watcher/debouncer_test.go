package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func TestDebouncerCoalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"create then modify keeps create", []Operation{OpCreate, OpModify}, OpCreate},
		{"modify then delete becomes delete", []Operation{OpModify, OpDelete}, OpDelete},
		{"delete then create becomes modify", []Operation{OpDelete, OpCreate}, OpModify},
		{"repeated modify stays modify", []Operation{OpModify, OpModify, OpModify}, OpModify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20*time.Millisecond, 4)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "/x/file.txt", Operation: op})
			}

			batch := collectBatch(t, d)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want, batch[0].Operation)
		})
	}
}

func TestDebouncerCreateDeleteCancels(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, 4)
	defer d.Stop()

	d.Add(FileEvent{Path: "/x/temp.txt", Operation: OpCreate})
	d.Add(FileEvent{Path: "/x/temp.txt", Operation: OpDelete})
	d.Add(FileEvent{Path: "/x/real.txt", Operation: OpCreate})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "/x/real.txt", batch[0].Path)
}

func TestDebouncerBatchesDistinctPaths(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, 4)
	defer d.Stop()

	d.Add(FileEvent{Path: "/x/a.txt", Operation: OpCreate})
	d.Add(FileEvent{Path: "/x/b.txt", Operation: OpModify})

	batch := collectBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncerStopIsIdempotent(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, 4)
	d.Stop()
	d.Stop()

	// Events after stop are dropped, not panicking on a closed channel
	d.Add(FileEvent{Path: "/x/a.txt", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}
