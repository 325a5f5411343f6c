package carousel

import (
	"time"
)

// Sample is a pointer position at a moment, the common shape of touch and mouse input
type Sample struct {
	X  float64
	At time.Time
}

// TouchStart begins gesture with the first touch point
func (c *Controller) TouchStart(touches []Sample) bool {
	if len(touches) == 0 {
		return false
	}
	return c.Begin(touches[0].X, touches[0].At)
}

func (c *Controller) TouchMove(touches []Sample) {
	if len(touches) == 0 {
		return
	}
	c.Move(touches[0].X, touches[0].At)
}

func (c *Controller) TouchEnd() int {
	return c.End()
}

func (c *Controller) MouseDown(s Sample) bool {
	return c.Begin(s.X, s.At)
}

// MouseMove is ignored unless a button press started a gesture
func (c *Controller) MouseMove(s Sample) {
	c.Move(s.X, s.At)
}

func (c *Controller) MouseUp() int {
	return c.End()
}

// MouseLeave resolves the gesture as if the button was released
func (c *Controller) MouseLeave() int {
	return c.End()
}
