package ha

import "errors"

var (
	// ErrEntityExists is returned when an entity name is already in use.
	ErrEntityExists = errors.New("ha: entity already exists")

	// ErrEntityNotFound is returned when no entity has the given name.
	ErrEntityNotFound = errors.New("ha: entity not found")

	// ErrTypeInvalid is returned for an unknown entity type.
	ErrTypeInvalid = errors.New("ha: invalid entity type")

	// ErrNameInvalid is returned when a name sanitises to nothing.
	ErrNameInvalid = errors.New("ha: invalid entity name")

	// ErrNoPublisher is returned when registration is attempted without a
	// publisher.
	ErrNoPublisher = errors.New("ha: no publisher")
)
