package scheduler

import (
	"time"

	"cryptopost_bot/internal/model"
)

var slotOrder = []model.DigestSlot{model.SlotMorning, model.SlotEvening}

// dueDigestSlot reports whether a digest window has arrived for a slot
// not yet emitted today. Morning wins when both are pending.
func (s *Scheduler) dueDigestSlot(now time.Time) (model.DigestSlot, bool) {
	local := now.In(s.loc)
	dayStr := local.Format("2006-01-02")

	for _, slot := range slotOrder {
		s.mu.Lock()
		emitted := s.state.LastDigestEmitted[slot] == dayStr
		s.mu.Unlock()
		if emitted {
			continue
		}
		if !local.Before(s.digestTarget(slot, local)) {
			return slot, true
		}
	}
	return "", false
}

// nextDigestTarget returns the soonest upcoming digest time: today's
// pending windows, or tomorrow's morning when today is spent.
func (s *Scheduler) nextDigestTarget(now time.Time) (time.Time, bool) {
	local := now.In(s.loc)
	dayStr := local.Format("2006-01-02")

	var best time.Time
	for _, slot := range slotOrder {
		s.mu.Lock()
		emitted := s.state.LastDigestEmitted[slot] == dayStr
		s.mu.Unlock()
		if emitted {
			continue
		}
		t := s.digestTarget(slot, local)
		if t.After(local) && (best.IsZero() || t.Before(best)) {
			best = t
		}
	}
	if !best.IsZero() {
		return best, true
	}

	tomorrow := local.AddDate(0, 0, 1)
	return s.digestTarget(model.SlotMorning, tomorrow), true
}

// digestTarget returns the jittered emission time for slot on day's
// date. The jitter is drawn once per slot per date and memoized so the
// target stays stable across cycles within the day.
func (s *Scheduler) digestTarget(slot model.DigestSlot, day time.Time) time.Time {
	key := slot.DedupKey(day)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.targets[key]; ok {
		return t
	}

	w := s.windows[slot]
	base := time.Date(day.Year(), day.Month(), day.Day(), w.Hour, w.Minute, 0, 0, s.loc)
	if w.Jitter > 0 {
		base = base.Add(time.Duration(s.rng.Int63n(int64(w.Jitter))))
	}

	// Evict spent dates only: dropping a current entry would re-roll a
	// jittered target within its day. Keys are date-prefixed, so string
	// order is date order.
	if len(s.targets) > 16 {
		cutoff := day.AddDate(0, 0, -1).Format("2006-01-02")
		for k := range s.targets {
			if k[:len(cutoff)] < cutoff {
				delete(s.targets, k)
			}
		}
	}
	s.targets[key] = base
	return base
}
