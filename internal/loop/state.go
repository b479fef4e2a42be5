package loop

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/psyche/internal/substrate"
)

// persistedState is the resumption bookkeeping in .psyche/loop.json. It is
// written atomically and read permissively: absence or corruption means a
// fresh start, never a startup failure.
type persistedState struct {
	Cycle       int       `json:"cycle"`
	LastCycleAt time.Time `json:"last_cycle_at"`
}

func loadState(path string) (persistedState, bool) {
	var st persistedState
	if path == "" {
		return st, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return st, false
	}
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("corrupt loop state, starting fresh")
		return persistedState{}, false
	}
	return st, true
}

func saveState(path string, st persistedState) {
	if path == "" {
		return
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("encode loop state")
		return
	}
	if err := substrate.AtomicWriteFile(path, data); err != nil {
		log.Error().Err(err).Str("path", path).Msg("persist loop state")
	}
}
