package playback

// Effect is a side effect requested by a decision function. Only the
// Controller executes effects.
type Effect interface {
	effect()
}

// Publish sends a message on the room bus. To is set for peer-addressed topics.
type Publish struct {
	Type    string
	To      string
	Payload any
}

type Seek struct {
	Timing float64
}

// SetPlaying drives the player. Debounced requests replace any pending one.
type SetPlaying struct {
	Playing   bool
	Debounced bool
}

type SetRate struct {
	Rate float64
}

type LoadMedia struct {
	URL string
}

type PersistURL struct {
	URL string
}

// RetryRoomStatus asks for the room status again after the retry delay.
type RetryRoomStatus struct{}

func (Publish) effect()         {}
func (Seek) effect()            {}
func (SetPlaying) effect()      {}
func (SetRate) effect()         {}
func (LoadMedia) effect()       {}
func (PersistURL) effect()      {}
func (RetryRoomStatus) effect() {}
