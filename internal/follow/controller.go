package follow

// State is the runtime follow state
type State int

const (
	Following State = iota
	Paused
)

// String returns a readable state name
func (s State) String() string {
	if s == Paused {
		return "paused"
	}
	return "following"
}

// Controller decides whether the camera recenters on the aircraft.
// Enabled is a configuration switch; State only matters while enabled.
type Controller struct {
	enabled bool
	state   State
}

// NewController creates a controller in the Following state
func NewController(enabled bool) *Controller {
	return &Controller{enabled: enabled, state: Following}
}

// Drag pauses following after a manual pan. Idempotent.
func (c *Controller) Drag() {
	c.state = Paused
}

// Resume returns to Following
func (c *Controller) Resume() {
	c.state = Following
}

// SetEnabled toggles following. Enabling also resumes.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled = enabled
	if enabled {
		c.state = Following
	}
}

// Enabled reports the configuration switch
func (c *Controller) Enabled() bool {
	return c.enabled
}

// State returns the runtime state
func (c *Controller) State() State {
	return c.state
}

// ShouldRecenter reports whether the camera should follow the next position
func (c *Controller) ShouldRecenter() bool {
	return c.enabled && c.state == Following
}
