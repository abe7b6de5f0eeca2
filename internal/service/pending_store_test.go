package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPendingStoreUploads(t *testing.T) {
	p := NewPendingStore(8, time.Hour)
	p.PutUpload(&PendingUpload{RequestID: "r1", AssetIDs: []string{"a", "b"}})

	got, ok := p.Upload("r1")
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, got.AssetIDs)

	p.EvictUpload("r1")
	_, ok = p.Upload("r1")
	require.False(t, ok)
}

func TestPendingStoreLatestTransform(t *testing.T) {
	p := NewPendingStore(8, time.Hour)
	_, ok := p.LatestTransform("proj")
	require.False(t, ok)

	p.PutTransform(&TransformJob{ID: "t1", Project: "proj", Status: "initiated"})
	p.PutTransform(&TransformJob{ID: "t2", Project: "proj", Status: "initiated"})
	p.PutTransform(&TransformJob{ID: "t3", Project: "other", Status: "initiated"})

	id, ok := p.LatestTransform("proj")
	require.True(t, ok)
	require.Equal(t, "t2", id)

	p.UpdateTransform("t2", "completed", "")
	job, ok := p.Transform("t2")
	require.True(t, ok)
	require.Equal(t, "completed", job.Status)

	p.UpdateTransform("missing", "completed", "")
	_, ok = p.Transform("missing")
	require.False(t, ok)
}

func TestPendingStoreExpiry(t *testing.T) {
	p := NewPendingStore(8, 20*time.Millisecond)
	p.PutUpload(&PendingUpload{RequestID: "r1"})
	p.PutTransform(&TransformJob{ID: "t1", Project: "proj"})
	time.Sleep(80 * time.Millisecond)

	_, ok := p.Upload("r1")
	require.False(t, ok)
	_, ok = p.LatestTransform("proj")
	require.False(t, ok)
}

func TestPendingStoreDropsLatestOfEvictedJob(t *testing.T) {
	p := NewPendingStore(2, time.Hour)
	p.PutTransform(&TransformJob{ID: "t1", Project: "a"})
	p.PutTransform(&TransformJob{ID: "t2", Project: "b"})
	p.PutTransform(&TransformJob{ID: "t3", Project: "b"})

	require.True(t, p.latest.Contains("a"))
	_, ok := p.LatestTransform("a")
	require.False(t, ok)
	require.False(t, p.latest.Contains("a"))

	id, ok := p.LatestTransform("b")
	require.True(t, ok)
	require.Equal(t, "t3", id)
	require.Equal(t, 1, p.latest.Len())
}
