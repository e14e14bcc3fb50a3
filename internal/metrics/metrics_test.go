package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrementsReflectInSnapshot(t *testing.T) {
	var c Counters
	c.IncChecksumErrorIPv4()
	c.IncChecksumErrorTCP()
	c.IncChecksumErrorTCP()
	c.IncChecksumErrorUDP()
	c.IncFragmentDropped()
	c.IncStraySegmentTCP()
	c.IncStrayDatagramUDP()
	c.IncReassemblyOverflowTCP()
	c.IncARPRequestTimedOut()

	snap := c.Snapshot()
	assert.EqualValues(t, 1, snap.ChecksumErrorsIPv4)
	assert.EqualValues(t, 2, snap.ChecksumErrorsTCP)
	assert.EqualValues(t, 1, snap.ChecksumErrorsUDP)
	assert.EqualValues(t, 1, snap.FragmentsDropped)
	assert.EqualValues(t, 1, snap.StraySegmentsTCP)
	assert.EqualValues(t, 1, snap.StrayDatagramsUDP)
	assert.EqualValues(t, 1, snap.ReassemblyOverflowTCP)
	assert.EqualValues(t, 1, snap.ARPRequestsTimedOut)
}

func TestSnapshotIsUnaffectedByFurtherIncrements(t *testing.T) {
	var c Counters
	c.IncChecksumErrorUDP()
	snap := c.Snapshot()
	c.IncChecksumErrorUDP()
	assert.EqualValues(t, 1, snap.ChecksumErrorsUDP)
	assert.EqualValues(t, 2, c.Snapshot().ChecksumErrorsUDP)
}

func TestConcurrentIncrementsAreRaceFree(t *testing.T) {
	var c Counters
	var wg sync.WaitGroup
	const goroutines = 50
	const perGoroutine = 100
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.IncStrayDatagramUDP()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, goroutines*perGoroutine, c.Snapshot().StrayDatagramsUDP)
}
