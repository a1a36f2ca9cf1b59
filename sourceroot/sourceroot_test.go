package sourceroot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemorySinkRecordsInOrder(t *testing.T) {
	sink := NewInMemorySink()
	sink.Register("/out/main", Main)
	sink.Register("/out/test", Test)

	regs := sink.Registrations()
	assert.Equal(t, []Registration{
		{Dir: "/out/main", Kind: Main},
		{Dir: "/out/test", Kind: Test},
	}, regs)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "MAIN", Main.String())
	assert.Equal(t, "TEST", Test.String())
}

func TestInMemorySinkConcurrentRegisterIsSafe(t *testing.T) {
	sink := NewInMemorySink()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Register("/out", Main)
		}()
	}
	wg.Wait()
	assert.Len(t, sink.Registrations(), 16)
}
