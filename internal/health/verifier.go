package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Verifier checks one component.
type Verifier interface {
	Verify(ctx context.Context) (bool, error)
}

// VerifierFunc adapts a ping style function to a Verifier.
type VerifierFunc func(ctx context.Context) error

func (f VerifierFunc) Verify(ctx context.Context) (bool, error) {
	if err := f(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ComponentVerifier runs registered verifiers and feeds the tracker.
type ComponentVerifier struct {
	tracker   *Tracker
	mu        sync.Mutex
	verifiers map[string]Verifier
}

func NewComponentVerifier(tracker *Tracker) *ComponentVerifier {
	return &ComponentVerifier{
		tracker:   tracker,
		verifiers: make(map[string]Verifier),
	}
}

// RegisterVerifier adds a verifier for a specific component.
func (v *ComponentVerifier) RegisterVerifier(component string, verifier Verifier) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verifiers[component] = verifier
}

// VerifyAll runs all the registered checks once.
func (v *ComponentVerifier) VerifyAll(ctx context.Context) {
	v.mu.Lock()
	verifiers := make(map[string]Verifier, len(v.verifiers))
	for name, verifier := range v.verifiers {
		verifiers[name] = verifier
	}
	v.mu.Unlock()

	for name, verifier := range verifiers {
		isHealthy, err := verifier.Verify(ctx)
		if !isHealthy {
			logrus.WithError(err).Warnf("Component %s is unhealthy", name)
		}
		v.tracker.UpdateStatus(name, isHealthy, err)
	}
}

// StartReconciliationLoop re-runs the checks every interval until ctx is
// done.
func (v *ComponentVerifier) StartReconciliationLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				v.VerifyAll(ctx)
			}
		}
	}()
}
