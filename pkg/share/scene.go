package share

// SceneService exposes the presentation-layer scene state the pipeline
// reads. The canvas compositor implements it; tests use StaticScene.
type SceneService interface {
	// ActiveScene returns the identifier of the currently presented scene,
	// or ok=false when no presentation surface is active.
	ActiveScene() (sceneID string, ok bool)
	// PlacementTargets lists the valid placement targets in the active
	// scene for scene-embedded shares.
	PlacementTargets() []string
}

// StaticScene is a fixed SceneService for tests and headless gateways.
type StaticScene struct {
	SceneID string
	Targets []string
}

func (s StaticScene) ActiveScene() (string, bool) {
	return s.SceneID, s.SceneID != ""
}

func (s StaticScene) PlacementTargets() []string {
	return s.Targets
}
