package floorplan

import "slices"

// Pixel is a position in viewport pixels, origin top-left.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Element is the DOM node a pointer event originated from, with its
// ancestors chained through Parent.
type Element struct {
	ID      string
	Classes []string
	Parent  *Element
}

// Closest returns the nearest element, starting at e itself, carrying
// class, or nil.
func (e *Element) Closest(class string) *Element {
	for el := e; el != nil; el = el.Parent {
		if slices.Contains(el.Classes, class) {
			return el
		}
	}
	return nil
}

// ElementPath builds an element chain from per-node class lists, innermost
// first.
func ElementPath(classes ...[]string) *Element {
	var root, cur *Element
	for _, c := range classes {
		el := &Element{Classes: c}
		if cur == nil {
			root = el
		} else {
			cur.Parent = el
		}
		cur = el
	}
	return root
}

// PointerKind distinguishes moves from clicks.
type PointerKind int

const (
	PointerMove PointerKind = iota
	PointerClick
)

// PointerEvent is a pointer move or click over the map.
type PointerEvent struct {
	Kind     PointerKind
	Pixel    Pixel
	Target   *Element
	Dragging bool
}

// HitTester finds the top-most rendered feature at a pixel among the
// layers accepted by filter.
type HitTester interface {
	HitTest(px Pixel, filter func(LayerID) bool) *Feature
}

// Tooltip is the hover state as seen by the tooltip view.
type Tooltip struct {
	Visible bool    `json:"visible"`
	Text    string  `json:"text"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// TooltipView renders the tooltip. Show is only called when the tooltip
// becomes visible or changes feature; Move follows the pointer.
type TooltipView interface {
	Show(text string)
	Move(x, y float64)
	Hide()
}

// HoverConfig tunes the hover controller.
type HoverConfig struct {
	// OffsetX shifts the tooltip right of the pointer.
	OffsetX float64
	// ControlClass marks map control overlays; events over them never hit.
	ControlClass string
}

// DefaultHoverConfig matches the viewer markup.
func DefaultHoverConfig() HoverConfig {
	return HoverConfig{OffsetX: 10, ControlClass: "map-control"}
}

// HoverController tracks the feature under the pointer and keeps the
// tooltip in sync with it.
type HoverController struct {
	hit     HitTester
	view    TooltipView
	cfg     HoverConfig
	current *Feature
	tooltip Tooltip
}

// NewHoverController creates a hover controller. view may be nil.
func NewHoverController(hit HitTester, view TooltipView, cfg HoverConfig) *HoverController {
	if cfg.ControlClass == "" {
		cfg.ControlClass = DefaultHoverConfig().ControlClass
	}
	return &HoverController{hit: hit, view: view, cfg: cfg}
}

// HandlePointer processes a pointer move or click.
func (h *HoverController) HandlePointer(ev PointerEvent) {
	if ev.Kind == PointerMove && ev.Dragging {
		h.reset()
		return
	}

	f := h.featureAt(ev)
	if f != nil {
		h.tooltip.X = ev.Pixel.X + h.cfg.OffsetX
		h.tooltip.Y = ev.Pixel.Y
		if h.view != nil {
			h.view.Move(h.tooltip.X, h.tooltip.Y)
		}
		if f != h.current {
			h.tooltip.Visible = true
			h.tooltip.Text = f.Name
			if h.view != nil {
				h.view.Show(f.Name)
			}
		}
	} else {
		h.hide()
	}
	h.current = f
}

// Leave handles the pointer leaving the viewport.
func (h *HoverController) Leave() {
	h.reset()
}

// Current returns the feature under the pointer, or nil.
func (h *HoverController) Current() *Feature {
	return h.current
}

// State returns the tooltip state.
func (h *HoverController) State() Tooltip {
	return h.tooltip
}

func (h *HoverController) featureAt(ev PointerEvent) *Feature {
	if ev.Target != nil && ev.Target.Closest(h.cfg.ControlClass) != nil {
		return nil
	}
	if h.hit == nil {
		return nil
	}
	return h.hit.HitTest(ev.Pixel, LayerID.Interactive)
}

func (h *HoverController) reset() {
	h.hide()
	h.current = nil
}

func (h *HoverController) hide() {
	if !h.tooltip.Visible {
		return
	}
	h.tooltip.Visible = false
	if h.view != nil {
		h.view.Hide()
	}
}
