//go:build oto

package main

import "github.com/ardnew/soundbooster/sink/otosink"

func openSpeaker() (speaker, error) {
	p, err := otosink.New(sinkFrames)
	if err != nil {
		return nil, err
	}
	p.Start()
	return p, nil
}
