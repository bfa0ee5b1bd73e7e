package metrics

import "github.com/prometheus/client_golang/prometheus"

// Tee is a Registry that creates every metric in each of its registries and
// fans updates out to all of them.
type Tee []Registry

// NewGauge creates the gauge in every registry.
func (t Tee) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	out := make(teeGauge, 0, len(t))
	for _, r := range t {
		g, err := r.NewGauge(opts)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// NewGaugeVec creates the gauge vec in every registry.
func (t Tee) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	out := make(teeGaugeVec, 0, len(t))
	for _, r := range t {
		g, err := r.NewGaugeVec(opts, labels)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// NewCounter creates the counter in every registry.
func (t Tee) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	out := make(teeCounter, 0, len(t))
	for _, r := range t {
		c, err := r.NewCounter(opts)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// NewCounterVec creates the counter vec in every registry.
func (t Tee) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	out := make(teeCounterVec, 0, len(t))
	for _, r := range t {
		c, err := r.NewCounterVec(opts, labels)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// NewHistogramVec creates the histogram vec in every registry.
func (t Tee) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error) {
	out := make(teeHistogramVec, 0, len(t))
	for _, r := range t {
		h, err := r.NewHistogramVec(opts, labels)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

type teeGauge []Gauge

func (g teeGauge) Set(v float64) {
	for _, x := range g {
		x.Set(v)
	}
}

type teeGaugeVec []GaugeVec

func (g teeGaugeVec) With(labels prometheus.Labels) Gauge {
	out := make(teeGauge, len(g))
	for i, x := range g {
		out[i] = x.With(labels)
	}
	return out
}

type teeCounter []Counter

func (c teeCounter) Inc() {
	for _, x := range c {
		x.Inc()
	}
}

func (c teeCounter) Add(v float64) {
	for _, x := range c {
		x.Add(v)
	}
}

type teeCounterVec []CounterVec

func (c teeCounterVec) With(labels prometheus.Labels) Counter {
	out := make(teeCounter, len(c))
	for i, x := range c {
		out[i] = x.With(labels)
	}
	return out
}

type teeObserver []Observer

func (o teeObserver) Observe(v float64) {
	for _, x := range o {
		x.Observe(v)
	}
}

type teeHistogramVec []HistogramVec

func (h teeHistogramVec) With(labels prometheus.Labels) Observer {
	out := make(teeObserver, len(h))
	for i, x := range h {
		out[i] = x.With(labels)
	}
	return out
}
