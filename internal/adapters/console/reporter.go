// Package console prints readings for the operator.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
)

// Reporter writes readings to an operator terminal.
// Each report is written whole, so multi-line blocks never interleave.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewReporter creates a reporter writing to out
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

func (r *Reporter) ReportLuminosity(sample domain.LuminositySample) {
	r.printf("Luminosity:\n\t|%s|\n\tCapacitor charge count: %d\n", sample.Bar(), sample.Count)
}

func (r *Reporter) ReportDistance(sample domain.DistanceSample) {
	r.printf("Distance: %.2f cm\n", sample.Centimeters)
}

func (r *Reporter) ReportDistanceUnavailable(reason error) {
	r.printf("Distance: unavailable (%v)\n", reason)
}

func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}
