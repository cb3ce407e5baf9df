package dashboard

import "fmt"

// Level is the power value attached to a grant. Levels are totally ordered:
// a holder of a higher level satisfies any check requiring a lower one on the
// same permission. The numeric gaps leave room for intermediate levels.
type Level int

const (
	LevelNone  Level = 0
	LevelRead  Level = 10
	LevelWrite Level = 20
	LevelAdmin Level = 30
)

// Satisfies reports whether the level meets the given minimum.
func (l Level) Satisfies(min Level) bool {
	return l >= min
}

// Valid reports whether the level is one of the four named values.
func (l Level) Valid() bool {
	switch l {
	case LevelNone, LevelRead, LevelWrite, LevelAdmin:
		return true
	}
	return false
}

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	case LevelAdmin:
		return "admin"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a level name into its Level value.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "none":
		return LevelNone, nil
	case "read":
		return LevelRead, nil
	case "write":
		return LevelWrite, nil
	case "admin":
		return LevelAdmin, nil
	}
	return LevelNone, fmt.Errorf("dashboard: unknown level %q", s)
}

// MaxLevel returns the greater of two levels.
func MaxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}
