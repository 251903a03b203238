package inference

import "context"

// Mock is an in-memory Client for tests: Outputs is returned round-robin
// (cycled with modulo) regardless of the input batch, so callers can assert
// on dispatch/write behavior without a real inference service.
type Mock struct {
	Metadata   *Metadata
	Outputs    []Output
	LoadCalls  []string
	Predicts   int
	LastInputs []Input
}

func NewMock(meta *Metadata, outputs []Output) *Mock {
	return &Mock{Metadata: meta, Outputs: outputs}
}

func (m *Mock) GetMetadata(ctx context.Context) (*Metadata, error) {
	return m.Metadata, nil
}

func (m *Mock) LoadModel(ctx context.Context, setterName, cacheKey string, lruSize, ttlSeconds int) error {
	m.LoadCalls = append(m.LoadCalls, setterName)
	return nil
}

func (m *Mock) UnloadModel(ctx context.Context, setterName, cacheKey string) error {
	return nil
}

func (m *Mock) Predict(ctx context.Context, setterName, cacheKey string, lruSize, ttlSeconds int, inputs []Input) ([]Output, error) {
	m.Predicts++
	m.LastInputs = inputs
	if len(m.Outputs) == 0 {
		return make([]Output, len(inputs)), nil
	}
	out := make([]Output, len(inputs))
	for i := range inputs {
		out[i] = m.Outputs[i%len(m.Outputs)]
	}
	return out, nil
}
