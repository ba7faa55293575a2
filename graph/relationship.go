package graph

// Relationship is a server-side typed edge between two nodes. Like Node, a
// Relationship value is a local working copy; property changes are persisted
// by Client.SaveRelationship.
type Relationship struct {
	// ID is the store-assigned relationship identifier.
	ID int64 `json:"id"`

	// Type is the relationship type name (e.g. "FOLLOWS", "PART_OF").
	Type string `json:"type"`

	// StartID is the source node identifier.
	StartID int64 `json:"start_id"`

	// EndID is the target node identifier.
	EndID int64 `json:"end_id"`

	// Properties contains the relationship's properties.
	Properties map[string]any `json:"properties,omitempty"`
}

// Set stores a property on the local copy and returns the relationship for
// chaining.
func (r *Relationship) Set(key string, value any) *Relationship {
	if r.Properties == nil {
		r.Properties = make(map[string]any)
	}
	r.Properties[key] = value
	return r
}

// Get returns a property value, or nil when the property is absent.
func (r *Relationship) Get(key string) any {
	return r.Properties[key]
}
