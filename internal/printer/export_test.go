package printer

import "context"

// Poll runs a single monitor check
func (m *Monitor) Poll(ctx context.Context) {
	m.checkChanges(ctx)
}
