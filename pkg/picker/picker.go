// Package picker defines the interactive selection contracts the dispatch
// pipeline blocks on. Implementations live in the presentation layer; a
// cancelled pick (ok=false) aborts the pipeline with no side effects beyond
// steps that already ran.
package picker

import "context"

// RecipientPicker asks the operator to choose recipients among candidates.
type RecipientPicker interface {
	PickRecipients(ctx context.Context, candidates []string) (selection []string, ok bool, err error)
}

// PlacementPicker asks the operator to choose one placement target.
type PlacementPicker interface {
	PickPlacement(ctx context.Context, candidates []string) (target string, ok bool, err error)
}

// RecipientPickerFunc adapts a function to RecipientPicker.
type RecipientPickerFunc func(ctx context.Context, candidates []string) ([]string, bool, error)

func (f RecipientPickerFunc) PickRecipients(ctx context.Context, candidates []string) ([]string, bool, error) {
	return f(ctx, candidates)
}

// PlacementPickerFunc adapts a function to PlacementPicker.
type PlacementPickerFunc func(ctx context.Context, candidates []string) (string, bool, error)

func (f PlacementPickerFunc) PickPlacement(ctx context.Context, candidates []string) (string, bool, error) {
	return f(ctx, candidates)
}
