package stats

import "time"

// rateBuckets is the number of one-second buckets kept for rate counting.
const rateBuckets = 60

// rateCounter counts events per wall-clock second over the last minute.
type rateCounter struct {
	secs   [rateBuckets]int64
	counts [rateBuckets]int64
}

func (r *rateCounter) add(at time.Time) {
	sec := at.Unix()
	i := bucketIndex(sec)
	switch {
	case r.secs[i] == sec:
		r.counts[i]++
	case r.secs[i] < sec:
		r.secs[i] = sec
		r.counts[i] = 1
	}
	// Older than the bucket's second: outside every future window.
}

// since returns the number of events in the minute ending at now.
func (r *rateCounter) since(now time.Time) int64 {
	nowSec := now.Unix()
	var n int64
	for i := range r.secs {
		if r.counts[i] > 0 && r.secs[i] <= nowSec && r.secs[i] > nowSec-rateBuckets {
			n += r.counts[i]
		}
	}
	return n
}

func (r *rateCounter) reset() {
	*r = rateCounter{}
}

func bucketIndex(sec int64) int {
	i := sec % rateBuckets
	if i < 0 {
		i += rateBuckets
	}
	return int(i)
}
