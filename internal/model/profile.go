package model

// Profile is a discovery card: a candidate the user may like or pass on.
type Profile struct {
	ID        int64
	Name      string
	Age       int
	City      string
	Bio       string
	PhotoURL  string
	Interests []string
}

// SwipeDirection is the verdict on a discovery card.
type SwipeDirection string

const (
	SwipeLike SwipeDirection = "like"
	SwipePass SwipeDirection = "pass"
)

// SwipeResult is the server's answer to a recorded swipe.
type SwipeResult struct {
	IsMatch         bool
	MatchID         int64
	SwipesRemaining int
}

// DiscoveryFilter narrows the discovery feed. Zero values mean the
// server default applies.
type DiscoveryFilter struct {
	MinAge int
	MaxAge int
	City   string
}
