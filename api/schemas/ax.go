// api/schemas/ax.go
package schemas

// AXNode is one entry in an accessibility snapshot. The tree mirrors visible
// DOM structure; wrapper elements without a role, name or interactivity are
// elided and their children promoted.
type AXNode struct {
	Role        string    `json:"role"`
	Name        string    `json:"name,omitempty"`
	Ref         int       `json:"ref,omitempty"`
	Interactive bool      `json:"interactive,omitempty"`
	Value       string    `json:"value,omitempty"`
	Checked     *bool     `json:"checked,omitempty"`
	Disabled    bool      `json:"disabled,omitempty"`
	Expanded    *bool     `json:"expanded,omitempty"`
	Selected    bool      `json:"selected,omitempty"`
	Children    []*AXNode `json:"children,omitempty"`
}
