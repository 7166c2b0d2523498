package room

// Player is the relay's last known view of a room's playback. It is what a
// late REST caller sees; peers sync from each other, not from this record.
type Player struct {
	MediaURL     string  `redis:"media_url"`
	IsPlaying    bool    `redis:"is_playing"`
	Timing       float64 `redis:"timing"`
	PlaybackRate float64 `redis:"playback_rate"`
	UpdatedAt    int64   `redis:"updated_at"`
}

type UpdatePlayerStateParams struct {
	RoomID    string
	IsPlaying bool
	UpdatedAt int64
}

type UpdatePlayerTimingParams struct {
	RoomID    string
	Timing    float64
	UpdatedAt int64
}

type UpdatePlayerRateParams struct {
	RoomID       string
	PlaybackRate float64
	UpdatedAt    int64
}

type SetMediaURLParams struct {
	RoomID    string
	MediaURL  string
	UpdatedAt int64
}
