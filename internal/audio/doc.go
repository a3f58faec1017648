// Package audio handles buffering and track segmentation of captured stream audio.
// It accumulates encoded audio bytes for the track currently playing, bounded by a
// configurable size, and cuts a Segment whenever the stream announces a new title.
package audio
