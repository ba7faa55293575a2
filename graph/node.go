package graph

// Reserved node property names written by the mapper.
const (
	// PropClass marks the origin entity type of a node.
	PropClass = "class"

	// PropCreated is the creation timestamp property, set once when a node or
	// relationship is first written.
	PropCreated = "creationDate"

	// PropUpdated is the update timestamp property, refreshed on every write.
	PropUpdated = "updateDate"
)

// TimeFormat is the timestamp layout used for PropCreated and PropUpdated.
const TimeFormat = "2006-01-02 15:04:05"

// Node is a server-side graph node: a store-assigned identifier plus a flat
// property map. A Node value is a local working copy; mutations take effect
// only when the node is passed to Client.SaveNode.
type Node struct {
	// ID is the store-assigned node identifier.
	ID int64 `json:"id"`

	// Properties contains the node's scalar properties.
	Properties map[string]any `json:"properties,omitempty"`
}

// NewNode creates an empty node with an initialized property map.
func NewNode(id int64) *Node {
	return &Node{
		ID:         id,
		Properties: make(map[string]any),
	}
}

// Set stores a property on the local copy and returns the node for chaining.
func (n *Node) Set(key string, value any) *Node {
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	n.Properties[key] = value
	return n
}

// Get returns a property value, or nil when the property is absent.
func (n *Node) Get(key string) any {
	return n.Properties[key]
}

// Class returns the origin entity type marker, or "" when the node was not
// written by the mapper.
func (n *Node) Class() string {
	s, _ := n.Properties[PropClass].(string)
	return s
}
