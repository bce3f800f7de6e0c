package logic

import "time"

// Slot names one of the deferred actions a coordinator owns.
type Slot int

const (
	// SlotPrimary is the normal shutoff delay.
	SlotPrimary Slot = iota
	// SlotBackup is the safety ceiling.
	SlotBackup
	// SlotMotion is the grace period after motion stops.
	SlotMotion

	slotCount
)

// AllSlots lists every slot in display order.
var AllSlots = [slotCount]Slot{SlotPrimary, SlotBackup, SlotMotion}

func (s Slot) String() string {
	switch s {
	case SlotPrimary:
		return "primary"
	case SlotBackup:
		return "backup"
	case SlotMotion:
		return "motion"
	}
	return "unknown"
}

type timer struct {
	live     bool
	handle   Handle
	gen      uint64
	deadline time.Time
}

// Slots holds at most one live scheduler handle per slot. Restart and Cancel
// are the only mutators. Not safe for concurrent use; the Coordinator
// serializes access.
type Slots struct {
	sched Scheduler
	table [slotCount]timer
	gen   uint64
}

// NewSlots creates an empty slot table backed by sched.
func NewSlots(sched Scheduler) *Slots {
	return &Slots{sched: sched}
}

// Restart cancels any live handle for slot and schedules fire after d.
// fire receives the generation it was scheduled under so a late callback can
// be told apart from the current one via Claim.
func (s *Slots) Restart(slot Slot, d time.Duration, fire func(slot Slot, gen uint64)) {
	s.Cancel(slot)
	s.gen++
	gen := s.gen
	h := s.sched.After(d, func() { fire(slot, gen) })
	s.table[slot] = timer{
		live:     true,
		handle:   h,
		gen:      gen,
		deadline: s.sched.Now().Add(d),
	}
}

// Cancel stops the slot's live handle, if any.
func (s *Slots) Cancel(slot Slot) {
	t := s.table[slot]
	if !t.live {
		return
	}
	s.sched.Cancel(t.handle)
	s.table[slot] = timer{}
}

// Claim clears the slot if it is still live under gen. It reports false for
// a callback whose slot was cancelled or restarted after it was scheduled.
func (s *Slots) Claim(slot Slot, gen uint64) bool {
	t := s.table[slot]
	if !t.live || t.gen != gen {
		return false
	}
	s.table[slot] = timer{}
	return true
}

// IsLive reports whether slot has a pending callback.
func (s *Slots) IsLive(slot Slot) bool {
	return s.table[slot].live
}

// Deadline returns when slot fires, if live.
func (s *Slots) Deadline(slot Slot) (time.Time, bool) {
	t := s.table[slot]
	return t.deadline, t.live
}

// CancelAll cancels every live slot.
func (s *Slots) CancelAll() {
	for _, slot := range AllSlots {
		s.Cancel(slot)
	}
}

func (s *Slots) snapshot() []SlotSnapshot {
	out := make([]SlotSnapshot, 0, slotCount)
	for _, slot := range AllSlots {
		t := s.table[slot]
		out = append(out, SlotSnapshot{Slot: slot, Live: t.live, Deadline: t.deadline})
	}
	return out
}
