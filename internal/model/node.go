package model

import "github.com/paulmach/orb"

// Node is a point observation collected in the field.
type Node struct {
	ID       int64          `json:"id"`
	Point    orb.Point      `json:"-"`
	Category *string        `json:"category,omitempty"`
	FaultID  string         `json:"fault_id,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// CategoryOr returns the node's category, or def when it is null.
func (n Node) CategoryOr(def string) string {
	if n.Category == nil {
		return def
	}
	return *n.Category
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 { return &f }

// Int64Ptr returns a pointer to i.
func Int64Ptr(i int64) *int64 { return &i }
