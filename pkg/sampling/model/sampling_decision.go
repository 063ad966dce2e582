package model

// SamplingDecision is the output of one sampling consultation. It is never
// stored; CurrentRate is reported so operators can observe the adaptive rate.
type SamplingDecision struct {
	ShouldSample bool
	CurrentRate  float64
}
