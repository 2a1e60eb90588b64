package correlator

import "github.com/google/uuid"

// Engine tags which subsystem minted a QueryID, so the Coordinator can
// distinguish otherwise-identical identifiers across engines.
type Engine uint8

const (
	// EngineDHT tags queries minted by the DHT engine.
	EngineDHT Engine = iota
	// EngineDirect tags queries minted by the direct-query engine.
	EngineDirect
)

func (e Engine) String() string {
	switch e {
	case EngineDHT:
		return "dht"
	case EngineDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// QueryID is an opaque identifier minted by an engine. It is unique within
// its engine; the Engine tag disambiguates across engines.
type QueryID struct {
	Engine Engine
	ID     uuid.UUID
}

// NewQueryID mints a fresh, random QueryID tagged with engine.
func NewQueryID(engine Engine) QueryID {
	return QueryID{Engine: engine, ID: uuid.New()}
}

// String renders the QueryID for logging.
func (q QueryID) String() string {
	return q.Engine.String() + ":" + q.ID.String()
}
