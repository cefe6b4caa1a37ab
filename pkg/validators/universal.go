package validators

import (
	"encoding/json"
	"fmt"

	"github.com/classworks/playsync/pkg/game/types"
)

// ConfigField describes one setup-phase configurable field.
type ConfigField struct {
	Name     string
	Default  any
	Validate func(value any) error
}

// ConfigSpec is the set of fields a game accepts via SET_CONFIG.
type ConfigSpec map[string]ConfigField

// DefaultConfig builds the config map from the spec defaults with the
// caller-provided values merged over them. Unknown keys are rejected the
// same way a SET_CONFIG for them would be.
func (spec ConfigSpec) DefaultConfig(overrides map[string]any) (map[string]any, error) {
	config := make(map[string]any, len(spec))
	for name, field := range spec {
		config[name] = field.Default
	}
	for name, value := range overrides {
		field, ok := spec[name]
		if !ok {
			return nil, fmt.Errorf("unknown config field: %s", name)
		}
		if field.Validate != nil {
			if err := field.Validate(value); err != nil {
				return nil, fmt.Errorf("invalid config field %s: %v", name, err)
			}
		}
		config[name] = value
	}
	return config, nil
}

// SetConfigData is the payload of a SET_CONFIG move.
type SetConfigData struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// ApplySetConfig applies a SET_CONFIG move to the state envelope.
// Writes are field-scoped; concurrent writers to the same field resolve
// by arrival order since moves per session are serialized.
func ApplySetConfig(core *types.Core, spec ConfigSpec, move types.Move) *types.MoveError {
	if core.Phase != types.PhaseSetup {
		return types.NewPhaseViolation("SET_CONFIG is only legal during setup, current phase is %s", core.Phase)
	}

	data := &SetConfigData{}
	if err := json.Unmarshal(move.Data, data); err != nil {
		return types.NewFieldViolation("malformed SET_CONFIG payload: %v", err)
	}

	field, ok := spec[data.Field]
	if !ok {
		return types.NewFieldViolation("unknown config field: %s", data.Field)
	}
	if field.Validate != nil {
		if err := field.Validate(data.Value); err != nil {
			return types.NewFieldViolation("invalid value for %s: %v", data.Field, err)
		}
	}

	if core.Config == nil {
		core.Config = make(map[string]any)
	}
	core.Config[data.Field] = data.Value
	return nil
}

// ApplyGoToSetup rewinds the envelope to the setup phase. GO_TO_SETUP is
// legal from any phase; configuration fields are preserved and the
// caller resets its game-specific progress fields.
func ApplyGoToSetup(core *types.Core) {
	core.Phase = types.PhaseSetup
	core.ActivePlayers = nil
	core.PlayerMeta = nil
}

// ApplyStartGame transitions setup -> playing, snapshotting the active
// players and their metadata from the membership context.
func ApplyStartGame(core *types.Core, vctx types.Context, minPlayers int) *types.MoveError {
	if core.Phase != types.PhaseSetup {
		return types.NewPhaseViolation("START_GAME is only legal during setup, current phase is %s", core.Phase)
	}
	if len(vctx.ActivePlayers) < minPlayers {
		return types.NewFieldViolation("at least %d active players required, have %d", minPlayers, len(vctx.ActivePlayers))
	}

	core.ActivePlayers = append([]string{}, vctx.ActivePlayers...)
	core.PlayerMeta = make(map[string]types.PlayerMeta, len(vctx.Meta))
	for id, meta := range vctx.Meta {
		core.PlayerMeta[id] = meta
	}
	core.Phase = types.PhasePlaying
	return nil
}

// IntRange returns a field validator accepting JSON numbers within
// [min, max]. JSON decodes numbers as float64; integral values are
// required.
func IntRange(min, max int) func(value any) error {
	return func(value any) error {
		f, ok := value.(float64)
		if !ok {
			if i, isInt := value.(int); isInt {
				f = float64(i)
			} else {
				return fmt.Errorf("expected a number, got %T", value)
			}
		}
		if f != float64(int(f)) {
			return fmt.Errorf("expected an integer, got %v", f)
		}
		n := int(f)
		if n < min || n > max {
			return fmt.Errorf("must be between %d and %d, got %d", min, max, n)
		}
		return nil
	}
}

// ConfigInt reads an integer config value, tolerating the float64
// representation JSON decoding produces.
func ConfigInt(config map[string]any, name string, fallback int) int {
	value, ok := config[name]
	if !ok {
		return fallback
	}
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
