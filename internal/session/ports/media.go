// Package ports defines the interfaces of the external collaborators the
// session core depends on. Implementations live outside the core; tests
// substitute doubles.
package ports

import "context"

// TrackKind distinguishes the two local publishable tracks.
type TrackKind string

const (
	TrackCamera TrackKind = "camera"
	TrackScreen TrackKind = "screen"
)

// MediaEventKind enumerates media engine lifecycle signals.
type MediaEventKind int

const (
	MediaUnknown MediaEventKind = iota
	// RemoteTrackAdded fires when the peer publishes a track.
	RemoteTrackAdded
	// RemoteTrackEnded fires when a remote track disappears. For a screen
	// track this is the remote-stop detection path: the non-presenter
	// clears its presentation view without republishing the stop event.
	RemoteTrackEnded
	// RemoteLeft fires when the peer's connection drops.
	RemoteLeft
	// LocalLeft fires when the local connection is gone.
	LocalLeft
	// ScreenShareEnded fires when the OS/browser layer stops the local
	// capture outside the protocol (e.g. the native "stop sharing" button).
	ScreenShareEnded
)

// MediaEvent is one media engine signal.
type MediaEvent struct {
	Kind  MediaEventKind
	Track TrackKind
	User  string
}

// MediaEngine is the opaque audio/video transport. The session core only
// drives join/leave and track publication; media payloads never cross this
// boundary.
type MediaEngine interface {
	Join(ctx context.Context, sessionID, userName string) error
	Leave(ctx context.Context) error

	PublishTrack(ctx context.Context, kind TrackKind) error
	UnpublishTrack(ctx context.Context, kind TrackKind) error

	// Events returns the engine's signal stream. The channel is closed when
	// the engine shuts down.
	Events() <-chan MediaEvent
}
