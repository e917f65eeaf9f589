package daemon

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/timerapps/timerd/internal/domain"
)

var _ = Describe("Usage enforcement", func() {
	const pkg = "com.example.game"
	const tick = 5 * time.Second

	var h *harness

	Describe("an app with a 10-minute kill limit", func() {
		BeforeEach(func() {
			h = newHarness(killApp(10))
			h.probe.active = pkg
		})

		Context("when it stays in the foreground past its limit", func() {
			BeforeEach(func() {
				h.tickFor(10*time.Minute, tick)
			})

			It("kills the app once the limit is reached", func() {
				Expect(h.actuator.killed).To(ContainElement(pkg))
			})

			It("transitions the timer to blocked", func() {
				Expect(h.monitor.State(pkg)).To(Equal(domain.StateBlocked))
			})

			It("records the full limit in the ledger", func() {
				today := h.clock.Now().Format(domain.DateLayout)
				rec := h.ledger.Day(today)[pkg]
				Expect(rec.TotalMinutesUsed).To(Equal(10))
				Expect(rec.RemainingMinutes).To(BeZero())
				Expect(rec.LimitReached).To(BeTrue())
				Expect(rec.BlockedAt).NotTo(BeNil())
			})

			It("sent the low-time warning before blocking", func() {
				Expect(h.notifier.titles).To(ContainElement("Game - 5 Minutes Left"))
			})

			It("sent exactly one limit notification", func() {
				count := 0
				for _, title := range h.notifier.titles {
					if title == "timerd - Limit Reached" {
						count++
					}
				}
				Expect(count).To(Equal(1))
			})

			It("stays blocked through further foreground activity", func() {
				h.tickFor(5*time.Minute, tick)
				Expect(h.monitor.State(pkg)).To(Equal(domain.StateBlocked))
				Expect(h.monitor.UsedMinutes(pkg)).To(Equal(10))
			})
		})

		Context("when usage is split across foreground stretches", func() {
			BeforeEach(func() {
				h = newHarness(killApp(30))
				h.probe.active = pkg
				h.tickFor(5*time.Minute, tick) // 5m in the foreground

				h.probe.active = "com.other.launcher" // backgrounded for 20m
				h.tickFor(20*time.Minute, tick)

				h.probe.active = pkg // back for another 5m
				h.tickFor(5*time.Minute, tick)

				h.probe.active = ""
				h.monitor.tick()
			})

			It("counts only foreground time", func() {
				Expect(h.monitor.UsedMinutes(pkg)).To(Equal(10))
			})

			It("ends up paused, not blocked", func() {
				Expect(h.monitor.State(pkg)).To(Equal(domain.StatePaused))
				Expect(h.actuator.killed).To(BeEmpty())
			})

			It("recorded each finished stretch as a session", func() {
				today := h.clock.Now().Format(domain.DateLayout)
				rec := h.ledger.Day(today)[pkg]
				Expect(len(rec.Sessions)).To(Equal(2))
			})
		})
	})

	Describe("daily rollover", func() {
		var frozen domain.MonitoredApp

		BeforeEach(func() {
			frozen = domain.MonitoredApp{
				Package:      "com.example.video",
				Name:         "Video",
				LimitMinutes: 2,
				Action:       domain.ActionFreeze,
				Enabled:      true,
			}
			h = newHarness(frozen)
			h.probe.active = frozen.Package

			// Day one: the app runs out its limit and gets frozen.
			h.tickFor(3*time.Minute, tick)
			Expect(h.monitor.State(frozen.Package)).To(Equal(domain.StateBlocked))
			Expect(h.actuator.frozen).To(ContainElement(frozen.Package))

			// Midnight passes; the app is no longer in the foreground.
			h.probe.active = ""
			h.clock.Advance(16 * time.Hour)
			h.monitor.tick()
		})

		It("unfreezes the app on the first tick of the new day", func() {
			Expect(h.actuator.unfrozen).To(ContainElement(frozen.Package))
		})

		It("returns the timer to inactive", func() {
			Expect(h.monitor.State(frozen.Package)).To(Equal(domain.StateInactive))
		})

		It("starts the new day with a zeroed ledger record", func() {
			today := h.clock.Now().Format(domain.DateLayout)
			rec := h.ledger.Day(today)[frozen.Package]
			Expect(rec.TotalMinutesUsed).To(BeZero())
			Expect(rec.RemainingMinutes).To(Equal(2))
			Expect(rec.LimitReached).To(BeFalse())
		})

		It("lets the app run again", func() {
			h.probe.active = frozen.Package
			h.tickFor(time.Minute, tick)
			Expect(h.monitor.State(frozen.Package)).To(Equal(domain.StateMonitoring))
		})

		It("archives the finished day", func() {
			yesterday := h.clock.Now().AddDate(0, 0, -1).Format(domain.DateLayout)
			day, ok := h.archive.days[yesterday]
			Expect(ok).To(BeTrue())
			Expect(day[frozen.Package].TotalMinutesUsed).To(Equal(2))
			Expect(day[frozen.Package].LimitReached).To(BeTrue())
		})

		It("records the reset date so the rollover runs once", func() {
			today := h.clock.Now().Format(domain.DateLayout)
			Expect(h.apps.LastResetDate()).To(Equal(today))
		})
	})
})
