package timeline

import (
	"fmt"
)

// ItemKind identifies the concrete type of a timeline item.
type ItemKind string

const (
	KindVideo       ItemKind = "video"
	KindImage       ItemKind = "image"
	KindShape       ItemKind = "shape"
	KindText        ItemKind = "text"
	KindAudio       ItemKind = "audio"
	KindAdjustment  ItemKind = "adjustment"
	KindComposition ItemKind = "composition"
)

// Known returns true for the item kinds the renderer can dispatch on.
func (k ItemKind) Known() bool {
	switch k {
	case KindVideo, KindImage, KindShape, KindText, KindAudio, KindAdjustment, KindComposition:
		return true
	}
	return false
}

// CanvasSettings are invariant for the whole render session.
type CanvasSettings struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
	FPS    int `yaml:"fps" json:"fps"`
}

// Composition is the root object consumed from the editing layer.
type Composition struct {
	FPS              int                 `yaml:"fps" json:"fps"`
	DurationInFrames int                 `yaml:"durationInFrames" json:"durationInFrames"`
	Width            int                 `yaml:"width" json:"width"`
	Height           int                 `yaml:"height" json:"height"`
	BackgroundColor  string              `yaml:"backgroundColor,omitempty" json:"backgroundColor,omitempty"`
	Tracks           []Track             `yaml:"tracks" json:"tracks"`
	Transitions      []Transition        `yaml:"transitions,omitempty" json:"transitions,omitempty"`
	Keyframes        []PropertyKeyframes `yaml:"keyframes,omitempty" json:"keyframes,omitempty"`
}

// Canvas returns the session canvas settings of the composition.
func (c *Composition) Canvas() CanvasSettings {
	return CanvasSettings{Width: c.Width, Height: c.Height, FPS: c.FPS}
}

// Track is an ordered container of items. Higher Order paints earlier
// (further behind); Order 0 is the frontmost layer.
type Track struct {
	ID      string `yaml:"id" json:"id"`
	Order   int    `yaml:"order" json:"order"`
	Visible bool   `yaml:"visible" json:"visible"`
	Muted   bool   `yaml:"muted,omitempty" json:"muted,omitempty"`
	Items   []Item `yaml:"items" json:"items"`
}

// Effect is one entry of an item's (or adjustment layer's) effect stack.
// Amount semantics depend on Kind; see the effects package.
type Effect struct {
	Kind   string  `yaml:"kind" json:"kind"`
	Amount float64 `yaml:"amount" json:"amount"`
}

// Item is the tagged union over all timeline element kinds. Only the fields
// matching Kind are meaningful; the rest stay at their zero value.
type Item struct {
	ID               string   `yaml:"id" json:"id"`
	Kind             ItemKind `yaml:"type" json:"type"`
	From             int      `yaml:"from" json:"from"`
	DurationInFrames int      `yaml:"durationInFrames" json:"durationInFrames"`
	Effects          []Effect `yaml:"effects,omitempty" json:"effects,omitempty"`

	// Geometry. Width==0 && Height==0 means "auto": fit the source into the
	// canvas preserving aspect and center it.
	X            float64 `yaml:"x,omitempty" json:"x,omitempty"`
	Y            float64 `yaml:"y,omitempty" json:"y,omitempty"`
	Width        float64 `yaml:"width,omitempty" json:"width,omitempty"`
	Height       float64 `yaml:"height,omitempty" json:"height,omitempty"`
	Rotation     float64 `yaml:"rotation,omitempty" json:"rotation,omitempty"`
	Opacity      float64 `yaml:"opacity" json:"opacity"`
	CornerRadius float64 `yaml:"cornerRadius,omitempty" json:"cornerRadius,omitempty"`

	// Media (video/image/audio).
	MediaID     string  `yaml:"mediaId,omitempty" json:"mediaId,omitempty"`
	Src         string  `yaml:"src,omitempty" json:"src,omitempty"`
	SourceStart int     `yaml:"sourceStart,omitempty" json:"sourceStart,omitempty"`
	Speed       float64 `yaml:"speed" json:"speed"`
	Volume      float64 `yaml:"volume,omitempty" json:"volume,omitempty"`
	FadeIn      float64 `yaml:"fadeIn,omitempty" json:"fadeIn,omitempty"`
	FadeOut     float64 `yaml:"fadeOut,omitempty" json:"fadeOut,omitempty"`

	// Shape.
	Shape       string  `yaml:"shape,omitempty" json:"shape,omitempty"`
	Fill        string  `yaml:"fill,omitempty" json:"fill,omitempty"`
	IsMask      bool    `yaml:"isMask,omitempty" json:"isMask,omitempty"`
	MaskType    string  `yaml:"maskType,omitempty" json:"maskType,omitempty"`
	MaskFeather float64 `yaml:"maskFeather,omitempty" json:"maskFeather,omitempty"`
	MaskInvert  bool    `yaml:"maskInvert,omitempty" json:"maskInvert,omitempty"`

	// Text.
	Text     string  `yaml:"text,omitempty" json:"text,omitempty"`
	FontSize float64 `yaml:"fontSize,omitempty" json:"fontSize,omitempty"`
	Color    string  `yaml:"color,omitempty" json:"color,omitempty"`

	// Nested composition.
	Composition *Composition `yaml:"composition,omitempty" json:"composition,omitempty"`
}

// ActiveAt reports whether the item occupies the given frame:
// From <= frame < From+DurationInFrames.
func (it *Item) ActiveAt(frame int) bool {
	return frame >= it.From && frame < it.From+it.DurationInFrames
}

// End returns the first frame after the item's window.
func (it *Item) End() int {
	return it.From + it.DurationInFrames
}

// Visual reports whether the item paints pixels of its own. Audio and
// adjustment items never draw; masks are consumed by the mask engine.
func (it *Item) Visual() bool {
	switch it.Kind {
	case KindAudio, KindAdjustment:
		return false
	case KindShape:
		return !it.IsMask
	}
	return true
}

// Transition blends two adjacent clips over a frame window centered on the
// cut between them.
type Transition struct {
	ID               string `yaml:"id" json:"id"`
	Kind             string `yaml:"kind" json:"kind"`
	FromItemID       string `yaml:"fromItemId" json:"fromItemId"`
	ToItemID         string `yaml:"toItemId" json:"toItemId"`
	DurationInFrames int    `yaml:"durationInFrames" json:"durationInFrames"`
}

// Keyframe is a (frame, value) pair. Frame is relative to the item start.
// Easing other than "linear" is parsed and preserved but resolved linearly.
type Keyframe struct {
	Frame  int     `yaml:"frame" json:"frame"`
	Value  float64 `yaml:"value" json:"value"`
	Easing string  `yaml:"easing,omitempty" json:"easing,omitempty"`
}

// PropertyKeyframes is the ordered keyframe list of one animated property of
// one item. Property is one of: x, y, width, height, rotation, opacity,
// cornerRadius.
type PropertyKeyframes struct {
	ItemID    string     `yaml:"itemId" json:"itemId"`
	Property  string     `yaml:"property" json:"property"`
	Keyframes []Keyframe `yaml:"keyframes" json:"keyframes"`
}

// ItemKeyframes returns all keyframe tracks attached to the given item.
func (c *Composition) ItemKeyframes(itemID string) []PropertyKeyframes {
	var out []PropertyKeyframes
	for _, pk := range c.Keyframes {
		if pk.ItemID == itemID {
			out = append(out, pk)
		}
	}
	return out
}

// HasKeyframes reports whether any property of the item is animated.
func (c *Composition) HasKeyframes(itemID string) bool {
	for _, pk := range c.Keyframes {
		if pk.ItemID == itemID && len(pk.Keyframes) > 0 {
			return true
		}
	}
	return false
}

// FindItem returns the item with the given id and the order of its track.
func (c *Composition) FindItem(id string) (*Item, int, bool) {
	for ti := range c.Tracks {
		for ii := range c.Tracks[ti].Items {
			if c.Tracks[ti].Items[ii].ID == id {
				return &c.Tracks[ti].Items[ii], c.Tracks[ti].Order, true
			}
		}
	}
	return nil, 0, false
}

// Validate checks the structural invariants the renderer relies on.
func (c *Composition) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("composition: fps must be positive, got %d", c.FPS)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("composition: canvas %dx%d is not positive", c.Width, c.Height)
	}
	if c.DurationInFrames <= 0 {
		return fmt.Errorf("composition: durationInFrames must be positive, got %d", c.DurationInFrames)
	}
	seenOrder := map[int]string{}
	for ti := range c.Tracks {
		tr := &c.Tracks[ti]
		if prev, dup := seenOrder[tr.Order]; dup {
			return fmt.Errorf("composition: tracks %q and %q share order %d", prev, tr.ID, tr.Order)
		}
		seenOrder[tr.Order] = tr.ID
		for ii := range tr.Items {
			it := &tr.Items[ii]
			if !it.Kind.Known() {
				return fmt.Errorf("item %q: unknown type %q", it.ID, it.Kind)
			}
			if it.DurationInFrames <= 0 {
				return fmt.Errorf("item %q: durationInFrames must be positive", it.ID)
			}
			if it.From < 0 {
				return fmt.Errorf("item %q: negative start frame %d", it.ID, it.From)
			}
			if it.Kind == KindComposition && it.Composition == nil {
				return fmt.Errorf("item %q: composition item without nested composition", it.ID)
			}
		}
	}
	for _, tn := range c.Transitions {
		from, fromOrder, okFrom := c.FindItem(tn.FromItemID)
		to, toOrder, okTo := c.FindItem(tn.ToItemID)
		if !okFrom || !okTo {
			return fmt.Errorf("transition %q: references missing item", tn.ID)
		}
		if fromOrder != toOrder {
			return fmt.Errorf("transition %q: items %q and %q are on different tracks", tn.ID, from.ID, to.ID)
		}
		if tn.DurationInFrames <= 0 {
			return fmt.Errorf("transition %q: durationInFrames must be positive", tn.ID)
		}
	}
	return nil
}
