package movement

// Direction is a screen-relative arrow key.
type Direction int

const (
	Right Direction = iota
	Up
	Left
	Down
)

// Fixed order; rotating the camera by one step shifts the index by one.
var directions = [4][2]int{
	{1, 0},
	{0, -1},
	{-1, 0},
	{0, 1},
}

// MoveVector returns the (dx, dz) grid delta for an arrow key given the
// camera's quarter-turn rotation step.
func MoveVector(dir Direction, rotateStep int) (dx, dz int) {
	i := (int(dir) + rotateStep) % 4
	if i < 0 {
		i += 4
	}
	d := directions[i]
	return d[0], d[1]
}

// ParseDirection accepts compass letters (n/e/s/w) and arrow names.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "e", "east", "right":
		return Right, true
	case "n", "north", "up":
		return Up, true
	case "w", "west", "left":
		return Left, true
	case "s", "south", "down":
		return Down, true
	}
	return 0, false
}
