package model

// Graduate is a student entitled to invite guests to the ceremony.
// Each graduate holds a fixed quota of invitation slots; SlotsUsed is
// incremented once per issued invitation and decremented when a
// still-unsent invitation is cancelled.
//
// Fields:
//  ID           – primary key identifier.
//  UserID       – account that owns this graduate profile.
//  SlotsAllowed – maximum number of invitations.
//  SlotsUsed    – invitations currently counted against the quota.
type Graduate struct {
	ID           uint64 // graduates.id
	UserID       uint64 // graduates.user_id
	SlotsAllowed uint32 // graduates.slots_allowed
	SlotsUsed    uint32 // graduates.slots_used
}

// HasAvailableSlots reports whether another invitation may be issued.
func (g Graduate) HasAvailableSlots() bool { return g.SlotsUsed < g.SlotsAllowed }

// RemainingSlots never goes below zero, even when the stored counters
// were edited by hand into an inconsistent state.
func (g Graduate) RemainingSlots() uint32 {
	if g.SlotsUsed >= g.SlotsAllowed {
		return 0
	}
	return g.SlotsAllowed - g.SlotsUsed
}
