package domain

import "fmt"

// Postprocess action kinds. The set is closed: dispatch sites switch over
// Kind exhaustively instead of going through an open interface.
const (
	PostprocessMove   = "move"
	PostprocessRemove = "remove"
)

// PostprocessAction is one step run after a successful download: either move
// the item to another favorite list (TargetFid set) or remove it from its
// current list.
type PostprocessAction struct {
	Kind      string `yaml:"action" json:"action"`
	TargetFid string `yaml:"fid,omitempty" json:"fid,omitempty"`
}

// Validate checks the action kind and its variant-specific fields.
func (a PostprocessAction) Validate() error {
	switch a.Kind {
	case PostprocessMove:
		if a.TargetFid == "" {
			return fmt.Errorf("move action requires a target fid")
		}
		return nil
	case PostprocessRemove:
		return nil
	default:
		return fmt.Errorf("unknown postprocess action %q", a.Kind)
	}
}
