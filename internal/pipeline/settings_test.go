package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings_Update_keeps_concurrent_changes(t *testing.T) {
	s := NewSettings(Values{IncludeAuxChannels: true, DefaultGapMS: 60})

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Update(func(v *Values) { v.DefaultGapMS++ })
		}()
		go func() {
			defer wg.Done()
			s.Update(func(v *Values) { v.DefaultStartMS += 10 })
		}()
	}
	wg.Wait()

	got := s.Load()
	assert.Equal(t, int64(60+workers), got.DefaultGapMS)
	assert.Equal(t, int64(10*workers), got.DefaultStartMS)
	assert.True(t, got.IncludeAuxChannels)
}

func TestSettings_Update_returns_result(t *testing.T) {
	s := NewSettings(Values{})
	got := s.Update(func(v *Values) { v.IncludeAuxChannels = true })
	assert.True(t, got.IncludeAuxChannels)
	assert.Equal(t, got, s.Load())
}
