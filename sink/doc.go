// Package sink delivers processed audio to playback devices without letting
// them stall the executor.
//
// A [Pump] sits between the DSP stage and a blocking [FrameWriter]:
//
//	wav, _ := sink.CreateWAV("boosted.wav")
//	pump := sink.NewPump(wav, 64)
//	go pump.Run(ctx)
//	stage := dsp.NewStage(in, dsp.Tee{out, pump}, cfg, 0)
//
// Writers provided here record raw PCM or WAV files. Speaker playback lives
// in sink/otosink and the Bluetooth module driver in csr8645.
package sink
