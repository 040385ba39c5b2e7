package entity

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Identifier is an opaque source image identifier.
type Identifier string

// PathComponent returns the identifier escaped for use inside a single URI
// path segment. The ";" separator used by MetaIdentifier is escaped too.
func (id Identifier) PathComponent() string {
	return strings.ReplaceAll(url.PathEscape(string(id)), ";", "%3B")
}

// ScaleConstraint declares that a response represents a virtual image
// down-scaled to Numerator/Denominator of the true source size.
type ScaleConstraint struct {
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

func (sc ScaleConstraint) Valid() bool {
	return sc.Numerator >= 1 && sc.Denominator >= 1 && sc.Numerator <= sc.Denominator
}

func (sc ScaleConstraint) Fraction() float64 {
	return float64(sc.Numerator) / float64(sc.Denominator)
}

func (sc ScaleConstraint) String() string {
	return fmt.Sprintf("%d:%d", sc.Numerator, sc.Denominator)
}

// MetaIdentifier is an identifier plus optional page number and optional
// scale constraint. It round-trips losslessly through a single URI path
// segment of the form "identifier;page;num:den". Immutable.
type MetaIdentifier struct {
	ID    Identifier
	Page  int // 1-based; 0 means unset
	Scale *ScaleConstraint
}

// EffectivePage returns the 1-based page addressed by the identifier.
func (m MetaIdentifier) EffectivePage() int {
	if m.Page < 1 {
		return 1
	}
	return m.Page
}

// PathComponent serializes the meta-identifier into one URI path segment.
func (m MetaIdentifier) PathComponent() string {
	var b strings.Builder
	b.WriteString(m.ID.PathComponent())
	if m.Page > 0 {
		b.WriteString(";")
		b.WriteString(strconv.Itoa(m.Page))
	}
	if m.Scale != nil {
		b.WriteString(";")
		b.WriteString(m.Scale.String())
	}
	return b.String()
}

// ParseMetaIdentifier is the inverse of PathComponent.
func ParseMetaIdentifier(segment string) (MetaIdentifier, error) {
	parts := strings.Split(segment, ";")
	id, err := url.PathUnescape(parts[0])
	if err != nil {
		return MetaIdentifier{}, fmt.Errorf("invalid identifier %q: %w", parts[0], err)
	}
	if id == "" {
		return MetaIdentifier{}, fmt.Errorf("empty identifier: %w", ErrNotFound)
	}
	m := MetaIdentifier{ID: Identifier(id)}
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		if strings.Contains(part, ":") {
			sc, err := parseScaleConstraint(part)
			if err != nil {
				return MetaIdentifier{}, err
			}
			m.Scale = &sc
		} else {
			page, err := strconv.Atoi(part)
			if err != nil || page < 1 {
				return MetaIdentifier{}, fmt.Errorf("invalid page %q: %w", part, ErrNotFound)
			}
			m.Page = page
		}
	}
	return m, nil
}

func parseScaleConstraint(raw string) (ScaleConstraint, error) {
	var sc ScaleConstraint
	num, den, ok := strings.Cut(raw, ":")
	if !ok {
		return sc, fmt.Errorf("invalid scale constraint %q: %w", raw, ErrNotFound)
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return sc, fmt.Errorf("invalid scale constraint %q: %w", raw, ErrNotFound)
	}
	d, err := strconv.Atoi(den)
	if err != nil {
		return sc, fmt.Errorf("invalid scale constraint %q: %w", raw, ErrNotFound)
	}
	sc = ScaleConstraint{Numerator: n, Denominator: d}
	if !sc.Valid() {
		return sc, fmt.Errorf("invalid scale constraint %q: %w", raw, ErrNotFound)
	}
	return sc, nil
}
