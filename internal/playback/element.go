package playback

// Element is the media engine the clock steers. Times are in seconds.
// Implementations must not call back into the Clock from these methods; they
// report asynchronous events through HandleLoadedData, HandleError and
// HandleEnded instead.
type Element interface {
	CurrentTime() float64
	SetCurrentTime(sec float64)
	SetVolume(v float64)
	// SetSource replaces the media locator. An empty string detaches it.
	SetSource(src string)
	Load()
	// Play requests playback. An error means the request was refused.
	Play() error
	Pause()
}
