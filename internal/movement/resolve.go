package movement

type Pos struct {
	X int
	Y int
	Z int
}

func (p Pos) Add(dx, dy, dz int) Pos {
	return Pos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// Rule identifies which terrain rule produced a move.
type Rule int

const (
	RuleNone Rule = iota
	RuleFloor
	RuleStepDown
	RuleWall
	RuleClimb
	RuleStepUp
	RuleFall
	RuleDrop
	RuleBlocked
)

func (r Rule) String() string {
	switch r {
	case RuleFloor:
		return "floor"
	case RuleStepDown:
		return "step_down"
	case RuleWall:
		return "wall"
	case RuleClimb:
		return "climb"
	case RuleStepUp:
		return "step_up"
	case RuleFall:
		return "fall"
	case RuleDrop:
		return "drop"
	case RuleBlocked:
		return "blocked"
	default:
		return "none"
	}
}

// Resolve maps a requested horizontal step to the position the local avatar
// ends up in. It is pure: the same occupancy and input always give the same
// answer.
func Resolve(pos Pos, occupied func(Pos) bool, dx, dz int) Pos {
	p, _ := ResolveRule(pos, occupied, dx, dz)
	return p
}

// ResolveRule is Resolve plus the rule that fired. Rules are tried in a fixed
// order and the first match wins.
func ResolveRule(pos Pos, occupied func(Pos) bool, dx, dz int) (Pos, Rule) {
	target := pos.Add(dx, 0, dz)

	block := occupied(target)
	belowMe := occupied(pos.Add(0, -1, 0))
	aboveMe := occupied(pos.Add(0, 1, 0))
	belowBlock := occupied(target.Add(0, -1, 0))
	belowBlock2 := occupied(target.Add(0, -2, 0))
	aboveBlock := occupied(target.Add(0, 1, 0))

	walled := occupied(target.Add(-1, 0, 0)) ||
		occupied(target.Add(1, 0, 0)) ||
		occupied(target.Add(0, 0, -1)) ||
		occupied(target.Add(0, 0, 1))

	switch {
	case !block && belowBlock:
		return target, RuleFloor
	case belowMe && !block && !belowBlock && belowBlock2:
		return target.Add(0, -1, 0), RuleStepDown
	case !block && walled:
		return target, RuleWall
	case block && aboveBlock && !aboveMe:
		return pos.Add(0, 1, 0), RuleClimb
	case block && !aboveBlock && !aboveMe:
		// Horizontal delta is dropped here; the next step walks onto the block.
		return pos.Add(0, 1, 0), RuleStepUp
	case !block && !belowMe && !walled && !belowBlock:
		return pos.Add(0, -1, 0), RuleFall
	case !block && !belowBlock:
		// Unlike RuleFall this keeps the target column.
		return target.Add(0, -1, 0), RuleDrop
	default:
		return pos, RuleBlocked
	}
}
