package health_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/masa-finance/timeline-poller/internal/health"
)

var _ = Describe("Tracker", func() {
	var tracker *Tracker

	BeforeEach(func() {
		tracker = NewTracker()
	})

	Describe("Updating component status", func() {
		var testError = fmt.Errorf("test error")

		It("should correctly set the status to healthy", func() {
			tracker.UpdateStatus(ComponentStore, true, nil)
			status, exists := tracker.GetStatus(ComponentStore)
			Expect(exists).To(BeTrue())
			Expect(status.IsHealthy).To(BeTrue())
			Expect(status.LastError).To(BeEmpty())
			Expect(status.ErrorCount).To(BeZero())
			Expect(status.LastChecked).To(BeTemporally("~", time.Now(), time.Second))
		})

		It("should record the error and count repeated failures", func() {
			tracker.UpdateStatus(ComponentSession, true, nil)
			tracker.UpdateStatus(ComponentSession, false, testError)
			tracker.UpdateStatus(ComponentSession, false, testError)

			status, _ := tracker.GetStatus(ComponentSession)
			Expect(status.IsHealthy).To(BeFalse())
			Expect(status.LastError).To(Equal(testError.Error()))
			Expect(status.ErrorCount).To(Equal(2))
		})

		It("should reset the error state on recovery", func() {
			tracker.UpdateStatus(ComponentSession, false, testError)
			tracker.UpdateStatus(ComponentSession, true, nil)

			status, _ := tracker.GetStatus(ComponentSession)
			Expect(status.IsHealthy).To(BeTrue())
			Expect(status.LastError).To(BeEmpty())
			Expect(status.ErrorCount).To(BeZero())
		})
	})

	Describe("Getting all statuses", func() {
		It("should return a copy of the statuses map, not a reference", func() {
			tracker.UpdateStatus("cap1", true, nil)
			allStatuses := tracker.GetAllStatuses()
			allStatuses["cap1"] = ComponentStatus{Name: "modified"}

			currentStatus, _ := tracker.GetStatus("cap1")
			Expect(currentStatus.Name).To(Equal("cap1"))
		})
	})

	Describe("Aggregate health", func() {
		It("requires every named component to be known and healthy", func() {
			Expect(tracker.Healthy(ComponentStore)).To(BeFalse())

			tracker.UpdateStatus(ComponentStore, true, nil)
			tracker.UpdateStatus(ComponentScheduler, false, errors.New("stalled"))
			Expect(tracker.Healthy(ComponentStore)).To(BeTrue())
			Expect(tracker.Healthy(ComponentStore, ComponentScheduler)).To(BeFalse())
			Expect(tracker.Healthy()).To(BeFalse())
		})
	})
})

var _ = Describe("ComponentVerifier", func() {
	It("feeds verifier results into the tracker", func() {
		tracker := NewTracker()
		v := NewComponentVerifier(tracker)
		v.RegisterVerifier(ComponentStore, VerifierFunc(func(context.Context) error { return nil }))
		v.RegisterVerifier(ComponentQueue, VerifierFunc(func(context.Context) error { return errors.New("redis down") }))

		v.VerifyAll(context.Background())

		Expect(tracker.Healthy(ComponentStore)).To(BeTrue())
		status, ok := tracker.GetStatus(ComponentQueue)
		Expect(ok).To(BeTrue())
		Expect(status.LastError).To(Equal("redis down"))
	})

	It("re-checks periodically until cancelled", func() {
		tracker := NewTracker()
		v := NewComponentVerifier(tracker)
		healthy := make(chan bool, 1)
		healthy <- false
		v.RegisterVerifier(ComponentStore, VerifierFunc(func(context.Context) error {
			select {
			case ok := <-healthy:
				if !ok {
					return errors.New("not yet")
				}
			default:
			}
			return nil
		}))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		v.VerifyAll(ctx)
		Expect(tracker.Healthy(ComponentStore)).To(BeFalse())

		v.StartReconciliationLoop(ctx, 10*time.Millisecond)
		Eventually(func() bool { return tracker.Healthy(ComponentStore) }, time.Second, 10*time.Millisecond).Should(BeTrue())
	})
})
