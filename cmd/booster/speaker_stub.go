//go:build !oto

package main

import "errors"

func openSpeaker() (speaker, error) {
	return nil, errors.New("speaker playback requires a build with -tags oto")
}
