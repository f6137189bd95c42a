// Package inject feeds override readings from a line oriented source, such as
// stdin or a serial port, into a running scheduler.
package inject

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sensorsim/internal/models"
	"github.com/sensorsim/internal/sensors"
	"go.uber.org/zap"
)

type Injector interface {
	Inject(ctx context.Context, c sensors.Class, value float64) (models.Reading, error)
}

// ParseLine parses "<class>,<value>", e.g. "co2,999.9". Whitespace around
// either field is ignored.
func ParseLine(line string) (sensors.Class, float64, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected <class>,<value>, got %q", line)
	}
	class, err := sensors.ParseClass(parts[0])
	if err != nil {
		return 0, 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value %q: %w", strings.TrimSpace(parts[1]), err)
	}
	if err := CheckValue(value); err != nil {
		return 0, 0, err
	}
	return class, value, nil
}

// CheckValue rejects NaN and infinities, which have no JSON encoding.
func CheckValue(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("invalid value %v: must be a finite number", v)
	}
	return nil
}

// Run reads r line by line and injects every well-formed line. Blank lines
// and lines starting with '#' are skipped, malformed lines are logged. Run
// returns when r is exhausted or ctx is done; closing r unblocks a pending
// read. It reports how many overrides were published.
func Run(ctx context.Context, r io.Reader, inj Injector, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	injected := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return injected, nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		class, value, err := ParseLine(line)
		if err != nil {
			log.Warn("Skipping malformed injection line", zap.String("line", line), zap.Error(err))
			continue
		}
		if _, err := inj.Inject(ctx, class, value); err != nil {
			log.Warn("Injection failed", zap.String("class", class.String()), zap.Float64("value", value), zap.Error(err))
			continue
		}
		injected++
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return injected, fmt.Errorf("read injection source: %w", err)
	}
	return injected, nil
}
