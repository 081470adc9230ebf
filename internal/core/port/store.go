package port

// SnapshotStore persists the durable per-meter snapshot payloads. Load
// returns (nil, nil) when no snapshot exists for the key.
type SnapshotStore interface {
	Load(key string) ([]byte, error)
	Save(key string, payload []byte) error
	Close() error
}
