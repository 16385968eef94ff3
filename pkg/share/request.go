package share

// Request describes one share action. It is owned by the caller until
// dispatch returns; the pipeline works on its own Context copy.
type Request struct {
	// Source is the opaque media locator to share.
	Source string `json:"source"`
	Mode   Mode   `json:"mode"`
	// OptionName/OptionValue select the sub-policy within Mode and must
	// match a registered catalog action.
	OptionName  string `json:"option_name"`
	OptionValue string `json:"option_value"`
	// TargetArea optionally pre-selects the placement target for scene
	// mode; when empty, placement resolution picks one.
	TargetArea string `json:"target_area,omitempty"`
	// Flags is the open bag of mode-specific presentation booleans.
	// Flags not visible for Mode are silently dropped.
	Flags map[string]bool `json:"flags,omitempty"`
}

// Context is the mutable accumulator threaded through pipeline steps. It
// starts as a shallow copy of the request and is discarded when dispatch
// finishes, successfully or not.
type Context struct {
	Request

	// Recipients is the resolved, policy-filtered recipient set.
	Recipients []string
	// SceneID anchors the backdrop-darkness snapshot.
	SceneID string
	// Placement is the resolved placement target for scene mode.
	Placement string

	// pushErrs collects best-effort delivery failures; they surface to the
	// dispatch caller without failing the dispatch.
	pushErrs []error
}
