package entity

import (
	"fmt"
	"sort"
	"strings"
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) Area() int64 {
	return int64(s.Width) * int64(s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Region is a rectangular pixel region.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Region) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// Operation is a single step in an OperationList. CacheKey must be a
// canonical, deterministic fragment identifying the operation.
type Operation interface {
	CacheKey() string
}

// Crop selects a region of the image.
type Crop struct {
	Region Region
}

func (op Crop) CacheKey() string { return "crop:" + op.Region.String() }

// Scale resizes the image. A zero Width or Height preserves aspect ratio;
// a non-zero Percent overrides both.
type Scale struct {
	Width   int
	Height  int
	Percent float64
}

func (op Scale) CacheKey() string {
	if op.Percent > 0 {
		return fmt.Sprintf("scale:pct%g", op.Percent)
	}
	return fmt.Sprintf("scale:%d,%d", op.Width, op.Height)
}

// Rotate rotates by Degrees clockwise, optionally mirroring first.
type Rotate struct {
	Degrees float64
	Mirror  bool
}

func (op Rotate) CacheKey() string {
	return fmt.Sprintf("rotate:%g,%t", op.Degrees, op.Mirror)
}

// Filter applies a tonal filter.
type Filter string

const (
	FilterGray    Filter = "gray"
	FilterBitonal Filter = "bitonal"
)

func (op Filter) CacheKey() string { return "filter:" + string(op) }

// Redact obscures a region given in full-source coordinates. Zero width,
// zero height or zero opacity means the redaction has no visible effect.
type Redact struct {
	Region  Region
	Opacity float64
}

func (op Redact) CacheKey() string {
	return fmt.Sprintf("redact:%s,%g", op.Region.String(), op.Opacity)
}

// Encode selects the output format.
type Encode struct {
	Format  string
	Quality int
}

func (op Encode) CacheKey() string {
	return fmt.Sprintf("encode:%s,%d", op.Format, op.Quality)
}

// OperationList is an ordered sequence of operations plus an option bag,
// associated with one MetaIdentifier. It is mutable until Freeze is called;
// any mutation afterwards panics. Freezing is what makes a list safe to use
// as a cache key.
type OperationList struct {
	meta    MetaIdentifier
	ops     []Operation
	options map[string]string
	frozen  bool
}

func NewOperationList(meta MetaIdentifier) *OperationList {
	return &OperationList{
		meta:    meta,
		options: make(map[string]string),
	}
}

func (l *OperationList) Meta() MetaIdentifier { return l.meta }

func (l *OperationList) Identifier() Identifier { return l.meta.ID }

// Add appends an operation. Panics if the list is frozen.
func (l *OperationList) Add(op Operation) {
	l.checkOpen()
	l.ops = append(l.ops, op)
}

// SetOption sets a string option. Panics if the list is frozen.
func (l *OperationList) SetOption(key, value string) {
	l.checkOpen()
	l.options[key] = value
}

func (l *OperationList) Option(key string) (string, bool) {
	v, ok := l.options[key]
	return v, ok
}

// Operations returns the operations in application order.
func (l *OperationList) Operations() []Operation {
	out := make([]Operation, len(l.ops))
	copy(out, l.ops)
	return out
}

// Encode returns the encode operation, if any.
func (l *OperationList) Encode() (Encode, bool) {
	for _, op := range l.ops {
		if enc, ok := op.(Encode); ok {
			return enc, true
		}
	}
	return Encode{}, false
}

// Freeze makes the list immutable. Idempotent.
func (l *OperationList) Freeze() {
	l.frozen = true
}

func (l *OperationList) Frozen() bool { return l.frozen }

// CacheKey returns the canonical serialization of the list, suitable as a
// variant cache key. Panics if the list has not been frozen yet.
func (l *OperationList) CacheKey() string {
	if !l.frozen {
		panic("entity: CacheKey called on an unfrozen OperationList")
	}
	parts := make([]string, 0, len(l.ops)+1)
	parts = append(parts, l.meta.PathComponent())
	for _, op := range l.ops {
		parts = append(parts, op.CacheKey())
	}
	keys := make([]string, 0, len(l.options))
	for k := range l.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("opt:%s=%s", k, l.options[k]))
	}
	return strings.Join(parts, "_")
}

func (l *OperationList) checkOpen() {
	if l.frozen {
		panic("entity: mutation of a frozen OperationList")
	}
}
