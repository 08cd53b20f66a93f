package stats

// Alert types.
const (
	AlertLatencyP90     = "latency_p90_high"
	AlertReplaceRatio   = "replace_ratio_high"
	AlertRateLimitRatio = "rate_limit_ratio_high"
)

// Thresholds above which a snapshot raises alerts. Zero disables a check.
type Thresholds struct {
	LatencyP90MS   float64 `json:"latency_p90_warn_ms"`
	ReplaceRatio   float64 `json:"replace_ratio_warn"`
	RateLimitRatio float64 `json:"rate_limit_ratio_warn"`
}

// Alert is one threshold breach.
type Alert struct {
	TS        int64   `json:"ts"`
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Thresholds returns the current alert thresholds.
func (c *Collector) Thresholds() Thresholds {
	c.alertMu.Lock()
	defer c.alertMu.Unlock()
	return c.thresholds
}

// SetThresholds replaces the alert thresholds.
func (c *Collector) SetThresholds(t Thresholds) {
	c.alertMu.Lock()
	c.thresholds = t
	c.alertMu.Unlock()
}

// UpdateThresholds applies fn to the thresholds under the alert lock and
// returns the result.
func (c *Collector) UpdateThresholds(fn func(*Thresholds)) Thresholds {
	c.alertMu.Lock()
	defer c.alertMu.Unlock()
	fn(&c.thresholds)
	return c.thresholds
}

// Evaluate checks snap against the thresholds, appends any breaches to the
// alert history and returns them.
func (c *Collector) Evaluate(snap Snapshot) []Alert {
	c.alertMu.Lock()
	defer c.alertMu.Unlock()

	t := c.thresholds
	var out []Alert
	check := func(typ string, value, threshold float64) {
		if threshold > 0 && value > threshold {
			out = append(out, Alert{TS: snap.TS, Type: typ, Value: value, Threshold: threshold})
		}
	}
	if snap.Latency.Count > 0 {
		check(AlertLatencyP90, snap.Latency.P90, t.LatencyP90MS)
	}
	if snap.BroadcastTotal > 0 {
		check(AlertReplaceRatio, snap.ReplaceRatio, t.ReplaceRatio)
	}
	check(AlertRateLimitRatio, snap.RateLimitRatio, t.RateLimitRatio)

	for _, a := range out {
		c.alerts.push(a)
	}
	return out
}

// AlertHistory returns up to n most recent alerts, newest first. n <= 0
// returns the whole history.
func (c *Collector) AlertHistory(n int) []Alert {
	c.alertMu.Lock()
	all := c.alerts.items()
	c.alertMu.Unlock()

	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]Alert, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out
}
