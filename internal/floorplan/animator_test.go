package floorplan

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type animation struct {
	steps     []Transition
	onTick    func(bool)
	cancelled bool
}

// fakeCamera records animations and lets the test decide when they report.
// Applying a finished animation writes its last step into the state, the
// way a real view would.
type fakeCamera struct {
	state      CameraState
	animations []*animation
	cancels    int
}

func (c *fakeCamera) State() CameraState { return c.state }

func (c *fakeCamera) Animate(onTick func(bool), steps ...Transition) {
	c.animations = append(c.animations, &animation{steps: steps, onTick: onTick})
}

func (c *fakeCamera) CancelAnimations() {
	c.cancels++
	for _, a := range c.animations {
		if !a.cancelled {
			a.cancelled = true
			a.onTick(false)
		}
	}
}

func (c *fakeCamera) finish(a *animation) {
	if a.cancelled {
		return
	}
	last := a.steps[len(a.steps)-1]
	if last.Center != nil {
		c.state.Center = *last.Center
	}
	if last.Zoom != nil {
		c.state.Zoom = *last.Zoom
	}
	a.onTick(true)
}

func TestAnimator_FlyToSteps(t *testing.T) {
	cam := &fakeCamera{state: CameraState{Center: orb.Point{0, 700}, Zoom: 3}}
	a := NewAnimator(cam, AnimatorConfig{Duration: 2100 * time.Millisecond, ZoomDip: 2}, nil)

	a.FlyTo(&Feature{Name: "Conference A", Geometry: square(10, 10, 50, 50)})

	require.Len(t, cam.animations, 2)
	pan, zoom := cam.animations[0], cam.animations[1]

	require.Len(t, pan.steps, 1)
	assert.Equal(t, orb.Point{30, 30}, *pan.steps[0].Center)
	assert.Nil(t, pan.steps[0].Zoom)
	assert.Equal(t, 2100*time.Millisecond, pan.steps[0].Duration)

	require.Len(t, zoom.steps, 2)
	assert.Nil(t, zoom.steps[0].Center)
	assert.Equal(t, 1.0, *zoom.steps[0].Zoom)
	assert.Equal(t, 700*time.Millisecond, zoom.steps[0].Duration)
	assert.Equal(t, 3.0, *zoom.steps[1].Zoom)
	assert.Equal(t, 700*time.Millisecond, zoom.steps[1].Duration)
	assert.True(t, a.InFlight())
}

func TestAnimator_JointCompletionExactlyOnce(t *testing.T) {
	cam := &fakeCamera{state: CameraState{Zoom: 2}}
	a := NewAnimator(cam, DefaultAnimatorConfig(), nil)

	var settled []Flight
	a.OnSettled(func(f Flight) { settled = append(settled, f) })

	gen := a.FlyTo(&Feature{Geometry: square(0, 0, 2, 2)})
	pan, zoom := cam.animations[0], cam.animations[1]

	// Flaky collaborator: the pan reports twice before the zoom reports.
	pan.onTick(true)
	pan.onTick(true)
	assert.Empty(t, settled, "one sub-animation is not a joint completion")

	zoom.onTick(true)
	zoom.onTick(true)
	pan.onTick(false)

	require.Len(t, settled, 1)
	assert.Equal(t, gen, settled[0].Generation)
	assert.True(t, settled[0].Completed)
	assert.False(t, a.InFlight())
}

func TestAnimator_CancelledFlightSettlesIncomplete(t *testing.T) {
	cam := &fakeCamera{state: CameraState{Zoom: 2}}
	a := NewAnimator(cam, DefaultAnimatorConfig(), nil)

	var settled []Flight
	a.OnSettled(func(f Flight) { settled = append(settled, f) })

	a.FlyTo(&Feature{Geometry: square(0, 0, 2, 2)})
	cam.finish(cam.animations[0])
	cam.CancelAnimations()

	require.Len(t, settled, 1)
	assert.False(t, settled[0].Completed)
}

func TestAnimator_SupersededFlightIsIgnored(t *testing.T) {
	cam := &fakeCamera{state: CameraState{Center: orb.Point{0, 0}, Zoom: 4}}
	a := NewAnimator(cam, DefaultAnimatorConfig(), nil)

	var settled []Flight
	a.OnSettled(func(f Flight) { settled = append(settled, f) })

	f1 := &Feature{Name: "F1", Geometry: square(0, 0, 10, 10)}
	f2 := &Feature{Name: "F2", Geometry: square(100, 100, 110, 110)}

	a.FlyTo(f1)
	oldPan, oldZoom := cam.animations[0], cam.animations[1]

	gen2 := a.FlyTo(f2)
	assert.Equal(t, 1, cam.cancels, "the first flight's animations are cancelled")
	assert.True(t, oldPan.cancelled)
	assert.True(t, oldZoom.cancelled)
	assert.Empty(t, settled, "cancel callbacks of the old flight are dropped")

	// Late reports from the first flight arrive after the second started.
	oldPan.onTick(true)
	oldZoom.onTick(true)
	cam.finish(oldPan)
	assert.Empty(t, settled)
	assert.Equal(t, orb.Point{0, 0}, cam.state.Center, "cancelled animation must not move the camera")
	assert.True(t, a.InFlight())

	newPan, newZoom := cam.animations[2], cam.animations[3]
	cam.finish(newPan)
	cam.finish(newZoom)

	require.Len(t, settled, 1)
	assert.Equal(t, gen2, settled[0].Generation)
	assert.Same(t, f2, settled[0].Target)
	assert.Equal(t, orb.Point{105, 105}, cam.state.Center)
	assert.Equal(t, 4.0, cam.state.Zoom)
}

func TestAnimator_NoCancelWhenIdle(t *testing.T) {
	cam := &fakeCamera{state: CameraState{Zoom: 2}}
	a := NewAnimator(cam, DefaultAnimatorConfig(), nil)

	a.FlyTo(&Feature{Geometry: orb.Point{1, 1}})
	cam.finish(cam.animations[0])
	cam.finish(cam.animations[1])

	a.FlyTo(&Feature{Geometry: orb.Point{2, 2}})
	assert.Zero(t, cam.cancels)
	assert.Equal(t, uint64(2), a.Generation())
}
