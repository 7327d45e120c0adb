package fsrs

import "fmt"

const (
	DefaultRequestRetention = 0.9
	DefaultMaximumInterval  = 36500
)

// DefaultWeights is the published FSRS-5 parameter vector.
// Indices 17 and 18 are reserved by the upstream model and unused here.
var DefaultWeights = [19]float64{
	0.40255, 1.18385, 3.173, 15.69105, 7.1949,
	0.5345, 1.4604, 0.0046, 1.54575, 0.1192,
	1.01925, 1.9395, 0.11, 0.29605, 2.2698,
	0.2315, 2.9898, 0.51655, 0.6621,
}

// Parameters configure the scheduler. They are plain data so deployments can
// swap in optimized weights without a code change.
type Parameters struct {
	// RequestRetention is the target recall probability at the scheduled
	// due time, within (0, 1).
	RequestRetention float64
	// MaximumInterval caps the scheduled interval in days.
	MaximumInterval int
	// Weights is the FSRS parameter vector w[0..18].
	Weights [19]float64
}

func DefaultParameters() Parameters {
	return Parameters{
		RequestRetention: DefaultRequestRetention,
		MaximumInterval:  DefaultMaximumInterval,
		Weights:          DefaultWeights,
	}
}

func (p Parameters) Validate() error {
	if p.RequestRetention <= 0 || p.RequestRetention >= 1 {
		return fmt.Errorf("request retention must be within (0, 1), got %g", p.RequestRetention)
	}
	if p.MaximumInterval < 1 {
		return fmt.Errorf("maximum interval must be at least 1 day, got %d", p.MaximumInterval)
	}
	for i, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("weight w[%d] must not be negative, got %g", i, w)
		}
	}
	return nil
}
