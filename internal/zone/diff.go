package zone

import (
	"slices"

	"voxelzone.app/internal/protocol"
)

// Change is a bit set of user fields touched by a diff.
type Change uint8

const (
	ChangeName Change = 1 << iota
	ChangePosition
	ChangeEmotes
	ChangeAvatar
	ChangeTags
)

func (c Change) Has(f Change) bool { return c&f != 0 }

// DiffResult describes what ApplyUserDiff did.
type DiffResult struct {
	User         *User
	Created      bool
	Changed      Change
	PreviousName string
}

// ApplyUserDiff upserts the fields present in d. Absent fields keep their
// value and a field set to its current value is not reported as changed, so
// an authoritative echo of a local change is a no-op.
func (s *State) ApplyUserDiff(d protocol.UserDiff) DiffResult {
	u, created := s.GetUser(d.UserID)
	res := DiffResult{User: u, Created: created, PreviousName: u.Name}

	if d.Name != nil && *d.Name != u.Name {
		u.Name = *d.Name
		res.Changed |= ChangeName
	}
	if d.Position != nil {
		c := CoordOf(*d.Position)
		if u.Position == nil || *u.Position != c {
			u.Position = &c
			res.Changed |= ChangePosition
		}
	}
	if d.Emotes != nil && !slices.Equal(*d.Emotes, u.Emotes) {
		u.Emotes = slices.Clone(*d.Emotes)
		res.Changed |= ChangeEmotes
	}
	if d.Avatar != nil && *d.Avatar != u.Avatar {
		u.Avatar = *d.Avatar
		res.Changed |= ChangeAvatar
	}
	if d.Tags != nil && !slices.Equal(*d.Tags, u.Tags) {
		u.Tags = slices.Clone(*d.Tags)
		res.Changed |= ChangeTags
	}
	return res
}
