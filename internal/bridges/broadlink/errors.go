package broadlink

import "errors"

var (
	// ErrMissingMQTT is returned when NewBridge is called without an MQTT client.
	ErrMissingMQTT = errors.New("broadlink bridge: mqtt client is required")

	// ErrMissingRegistry is returned when NewBridge is called without a registry.
	ErrMissingRegistry = errors.New("broadlink bridge: device registry is required")

	// ErrMissingDispatcher is returned when NewBridge is called without a dispatcher.
	ErrMissingDispatcher = errors.New("broadlink bridge: dispatcher is required")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("broadlink bridge: already started")
)

var (
	// ErrLearningDisabled is returned when no controller is configured for
	// the requested learning kind.
	ErrLearningDisabled = errors.New("broadlink bridge: learning kind not enabled")

	// ErrUnknownKind is returned for a learning kind other than ir or rf.
	ErrUnknownKind = errors.New("broadlink bridge: unknown learning kind")

	// ErrStopped is returned when a session is requested after Stop.
	ErrStopped = errors.New("broadlink bridge: stopped")
)
