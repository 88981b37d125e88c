package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Cycle(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return clock }

	tr.StartCycle()
	tr.AddHost(false)
	tr.AddHost(true)
	clock = clock.Add(2 * time.Second)
	tr.AddDone(2048)
	tr.AddFailed()
	tr.AddSkipped()
	tr.AddCommitFailure()

	s := tr.GetStatus()
	assert.EqualValues(t, 1, s.Cycle)
	assert.EqualValues(t, 2, s.Hosts)
	assert.EqualValues(t, 1, s.HostFailures)
	assert.EqualValues(t, 4, s.Processed())
	assert.EqualValues(t, 2048, s.Bytes)
	assert.InDelta(t, 1024, s.AverageSpeed, 0.001)
	assert.Contains(t, s.Summary(), "2.0 KiB")
	assert.Contains(t, s.Summary(), "cycle 1")

	tr.StartCycle()
	s = tr.GetStatus()
	assert.EqualValues(t, 2, s.Cycle)
	assert.EqualValues(t, 0, s.Processed())
	assert.EqualValues(t, 0, s.Bytes)
}
