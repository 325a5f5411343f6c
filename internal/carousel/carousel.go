// Package carousel implements the swipe state machine of the full screen image viewer
package carousel

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nkiryanov/pixelforge/internal/models"
)

const (
	defaultThreshold         = 50.0
	defaultResistance        = 0.3
	defaultSettleDuration    = 350 * time.Millisecond
	defaultVelocityThreshold = 0.3 // units per ms
)

type Config struct {
	// Drag distance a gesture must exceed to move to the neighbour image
	Threshold float64

	// Factor applied to drags past the first or the last image
	Resistance float64

	// New gestures are refused this long after a gesture ends
	SettleDuration time.Duration

	// Commit short fast drags too: speed above VelocityThreshold (units per ms) is enough
	FlickEnabled      bool
	VelocityThreshold float64

	// Schedules f after d, returns func stopping it. Default is time.AfterFunc
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// gesture lives between Begin and End
type gesture struct {
	startX    float64
	startTime time.Time
	lastTime  time.Time
	offset    float64
}

// Controller tracks drag over ordered images and moves current index at most one step per gesture
// Safe for concurrent use
type Controller struct {
	cfg Config

	mu         sync.Mutex
	images     []models.ImageRef
	index      int
	gesture    *gesture
	committing bool
	commitSeq  uint64
	stopSettle func() bool
}

func New(cfg Config, images []models.ImageRef) *Controller {
	if cfg.Threshold == 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Resistance == 0 {
		cfg.Resistance = defaultResistance
	}
	if cfg.SettleDuration == 0 {
		cfg.SettleDuration = defaultSettleDuration
	}
	if cfg.VelocityThreshold == 0 {
		cfg.VelocityThreshold = defaultVelocityThreshold
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}

	return &Controller{
		cfg:    cfg,
		images: append([]models.ImageRef(nil), images...),
	}
}

// Begin opens a gesture at pointer x
// Refused when there is nothing to swipe or the previous gesture is still settling
func (c *Controller) Begin(x float64, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.images) <= 1 || c.committing {
		return false
	}

	c.gesture = &gesture{startX: x, startTime: at, lastTime: at}
	return true
}

// Move updates drag offset, dragging past an edge is damped by resistance
func (c *Controller) Move(x float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gesture == nil || c.committing || len(c.images) <= 1 {
		return
	}

	delta := x - c.gesture.startX
	atFirst := c.index == 0
	atLast := c.index == len(c.images)-1
	if (atFirst && delta > 0) || (atLast && delta < 0) {
		delta *= c.cfg.Resistance
	}

	c.gesture.offset = delta
	c.gesture.lastTime = at
}

// End resolves the gesture and returns current index
// Leftward drag moves to the next image, rightward to the previous one, never more than one step
func (c *Controller) End() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.gesture
	if g == nil {
		return c.index
	}
	c.gesture = nil

	if c.commit(g) {
		switch {
		case g.offset < 0 && c.index < len(c.images)-1:
			c.index++
		case g.offset > 0 && c.index > 0:
			c.index--
		}
	}

	c.committing = true
	c.commitSeq++
	seq := c.commitSeq
	c.stopSettle = c.cfg.AfterFunc(c.cfg.SettleDuration, func() { c.settle(seq) })

	return c.index
}

// Cancel drops the gesture without moving and without settling
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gesture = nil
}

func (c *Controller) commit(g *gesture) bool {
	distance := math.Abs(g.offset)
	if distance > c.cfg.Threshold {
		return true
	}
	if !c.cfg.FlickEnabled || distance == 0 {
		return false
	}

	elapsed := g.lastTime.Sub(g.startTime)
	if elapsed <= 0 {
		return false
	}
	velocity := distance / (float64(elapsed) / float64(time.Millisecond))
	return velocity > c.cfg.VelocityThreshold
}

func (c *Controller) settle(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.commitSeq {
		return
	}
	c.committing = false
	c.stopSettle = nil
}

// SetImages replaces images, current image is kept if it is still there
func (c *Controller) SetImages(images []models.ImageRef) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var currentID int64
	hadCurrent := c.index < len(c.images)
	if hadCurrent {
		currentID = c.images[c.index].ID
	}

	c.images = append([]models.ImageRef(nil), images...)
	if len(c.images) <= 1 {
		c.gesture = nil
	}

	if hadCurrent {
		if i := indexOf(c.images, currentID); i >= 0 {
			c.index = i
			return
		}
	}
	c.index = min(c.index, max(len(c.images)-1, 0))
}

// Select makes image with id current, false if there is no such image
func (c *Controller) Select(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := indexOf(c.images, id)
	if i < 0 {
		return false
	}
	c.index = i
	c.gesture = nil
	return true
}

func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}

// Current returns current image, false if there are no images
func (c *Controller) Current() (models.ImageRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index >= len(c.images) {
		return models.ImageRef{}, false
	}
	return c.images[c.index], true
}

// Offset is drag offset of the open gesture, 0 if none
func (c *Controller) Offset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gesture == nil {
		return 0
	}
	return c.gesture.offset
}

func (c *Controller) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gesture != nil
}

func (c *Controller) IsCommitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committing
}

// TrackOffset returns horizontal translation of the image strip in percent of its width
// width is the viewport width in the same units as pointer positions
func (c *Controller) TrackOffset(width float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.images)
	if n == 0 {
		return 0
	}

	slot := 100 / float64(n)
	offset := -float64(c.index) * slot
	if c.gesture != nil && width > 0 {
		offset += c.gesture.offset / width * slot
	}
	return offset
}

// Counter is position label like "2 / 5", empty when there is nothing to swipe
func (c *Controller) Counter() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.images) <= 1 {
		return ""
	}
	return fmt.Sprintf("%d / %d", c.index+1, len(c.images))
}

// Close stops settle timer and drops the gesture
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopSettle != nil {
		c.stopSettle()
		c.stopSettle = nil
	}
	c.commitSeq++
	c.committing = false
	c.gesture = nil
}

func indexOf(images []models.ImageRef, id int64) int {
	for i, img := range images {
		if img.ID == id {
			return i
		}
	}
	return -1
}
