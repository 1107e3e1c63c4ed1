// Package uac implements the USB Audio streaming function of the booster.
//
// [Streaming] owns one isochronous OUT endpoint (host playback into the
// booster) and one isochronous IN endpoint (boosted audio back to the
// host). OUT packets are reassembled into frames regardless of how the host
// splits them and pushed into the input ring. Each service interval the
// next processed frame is popped from the output ring and sent IN; when the
// DSP has nothing ready the host receives silence and an underrun is
// counted.
//
// Every attach starts a clean session: both rings are emptied and the
// shared configuration returns to its defaults. Detach cancels all
// in-flight transfers and the task idles until the next attach.
package uac
