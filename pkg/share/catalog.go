package share

// Mode is a presentation mode for shared media.
type Mode string

const (
	// ModeWindow presents the media in a dismissable overlay window.
	ModeWindow Mode = "window"
	// ModeImmersive presents the media fullscreen.
	ModeImmersive Mode = "immersive"
	// ModeScene embeds the media into a placement target of the active scene.
	ModeScene Mode = "scene"
)

// Option names and values recognized by the static action catalog.
const (
	OptionUsers     = "users"
	UsersAll        = "all"
	UsersSelection  = "selection"
	OptionPlacement = "placement"
	PlacementAuto   = "auto"
)

// Presentation flag names.
const (
	FlagLoop   = "loop"
	FlagMute   = "mute"
	FlagDarken = "darken"
)

// Action is one registered (mode, option) pair together with the
// presentation flags visible for it. A request whose triple is not in the
// catalog is rejected before any side effect.
type Action struct {
	Mode         Mode
	OptionName   string
	OptionValue  string
	AllowedFlags []string
}

type Catalog struct {
	actions map[actionKey]Action
	flags   map[Mode]map[string]bool
}

type actionKey struct {
	mode        Mode
	optionName  string
	optionValue string
}

func NewCatalog(actions []Action) *Catalog {
	c := &Catalog{
		actions: make(map[actionKey]Action, len(actions)),
		flags:   make(map[Mode]map[string]bool),
	}
	for _, a := range actions {
		c.actions[actionKey{a.Mode, a.OptionName, a.OptionValue}] = a
		allowed := c.flags[a.Mode]
		if allowed == nil {
			allowed = make(map[string]bool)
			c.flags[a.Mode] = allowed
		}
		for _, f := range a.AllowedFlags {
			allowed[f] = true
		}
	}
	return c
}

// DefaultCatalog registers the built-in actions. Window and immersive
// shares pick recipients; scene shares pick a placement. Darkness coupling
// only applies to modes that fully cover or replace the backdrop.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Action{
		{Mode: ModeWindow, OptionName: OptionUsers, OptionValue: UsersAll,
			AllowedFlags: []string{FlagLoop, FlagMute}},
		{Mode: ModeWindow, OptionName: OptionUsers, OptionValue: UsersSelection,
			AllowedFlags: []string{FlagLoop, FlagMute}},
		{Mode: ModeImmersive, OptionName: OptionUsers, OptionValue: UsersAll,
			AllowedFlags: []string{FlagLoop, FlagMute, FlagDarken}},
		{Mode: ModeImmersive, OptionName: OptionUsers, OptionValue: UsersSelection,
			AllowedFlags: []string{FlagLoop, FlagMute, FlagDarken}},
		{Mode: ModeScene, OptionName: OptionPlacement, OptionValue: PlacementAuto,
			AllowedFlags: []string{FlagLoop, FlagMute, FlagDarken}},
	})
}

// Validate rejects requests whose source is missing or whose
// (mode, optionName, optionValue) triple is not registered.
func (c *Catalog) Validate(req Request) error {
	if req.Source == "" {
		return &ValidationError{Field: "source", Reason: "must not be empty"}
	}
	key := actionKey{req.Mode, req.OptionName, req.OptionValue}
	if _, ok := c.actions[key]; !ok {
		return &ValidationError{
			Field:  "mode",
			Reason: "no registered action for " + string(req.Mode) + "/" + req.OptionName + "=" + req.OptionValue,
		}
	}
	return nil
}

// FilterFlags drops flags that are not visible for the mode.
func (c *Catalog) FilterFlags(mode Mode, flags map[string]bool) map[string]bool {
	if len(flags) == 0 {
		return nil
	}
	allowed := c.flags[mode]
	out := make(map[string]bool, len(flags))
	for name, v := range flags {
		if allowed[name] {
			out[name] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
