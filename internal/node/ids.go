package node

import "github.com/google/uuid"

// IDGenerator hands out sync subscription ids.
type IDGenerator interface {
	Generate() string
}

// uuidSyncIDs issues UUIDv7 sync ids, which sort by creation time in logs.
type uuidSyncIDs struct{}

func (uuidSyncIDs) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
