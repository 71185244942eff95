// Package generationtest provides a scriptable Generator for tests.
package generationtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kalambet/claritydesk/internal/intake"
)

// Fake is a Generator whose responses are controlled by the test. By default
// every call succeeds with a minimal report.
type Fake struct {
	mu sync.Mutex

	// Err, when set, is returned by every call.
	Err error
	// Hook, when set, runs before each call and may block, fail or panic.
	// It receives the call index starting at zero.
	Hook func(ctx context.Context, call int) error

	technical []intake.TechnicalInput
	strategic []intake.StrategicInput
}

func (f *Fake) begin(ctx context.Context) error {
	f.mu.Lock()
	call := len(f.technical) + len(f.strategic) - 1
	hook, err := f.Hook, f.Err
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx, call); herr != nil {
			return herr
		}
	}
	return err
}

func (f *Fake) GenerateTechnical(ctx context.Context, in intake.TechnicalInput) (*intake.TechnicalReport, error) {
	f.mu.Lock()
	f.technical = append(f.technical, in)
	n := len(f.technical)
	f.mu.Unlock()

	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	return &intake.TechnicalReport{
		ID:         fmt.Sprintf("tech-report-%d", n),
		BottomLine: "Inspect the " + in.Vehicle.Make,
		RiskProfile: intake.RiskProfile{
			Band: "Green",
		},
	}, nil
}

func (f *Fake) GenerateStrategic(ctx context.Context, in intake.StrategicInput) (*intake.StrategicReport, error) {
	f.mu.Lock()
	f.strategic = append(f.strategic, in)
	n := len(f.strategic)
	f.mu.Unlock()

	if err := f.begin(ctx); err != nil {
		return nil, err
	}
	return &intake.StrategicReport{
		ID:    fmt.Sprintf("strat-report-%d", n),
		Title: in.Subject,
	}, nil
}

// SetErr changes the error returned by subsequent calls.
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Calls returns the number of calls made so far.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.technical) + len(f.strategic)
}

// TechnicalInputs returns the inputs passed to GenerateTechnical.
func (f *Fake) TechnicalInputs() []intake.TechnicalInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]intake.TechnicalInput(nil), f.technical...)
}

// StrategicInputs returns the inputs passed to GenerateStrategic.
func (f *Fake) StrategicInputs() []intake.StrategicInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]intake.StrategicInput(nil), f.strategic...)
}
