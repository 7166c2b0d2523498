package room

// ClaimHolderResponse reports the holder after a claim attempt. Claimed is
// false when another connection already held the room.
type ClaimHolderResponse struct {
	HolderID string
	Claimed  bool
}

// RoomState is the arbitration state the relay keeps per room.
type RoomState struct {
	HostID   string `redis:"host_id"`
	HolderID string `redis:"holder_id"`
}
