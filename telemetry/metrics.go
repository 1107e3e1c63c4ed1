package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "booster"

// collector exports a Status as Prometheus metrics. Values are read at
// scrape time so nothing on the audio path touches Prometheus.
type collector struct {
	source Source

	gain      *prometheus.Desc
	muted     *prometheus.Desc
	underruns *prometheus.Desc
	overruns  *prometheus.Desc
	dropped   *prometheus.Desc

	usbStreaming *prometheus.Desc
	usbPackets   *prometheus.Desc
	usbFrames    *prometheus.Desc
	usbDropped   *prometheus.Desc
	usbStarved   *prometheus.Desc
	usbSessions  *prometheus.Desc

	netState    *prometheus.Desc
	netSessions *prometheus.Desc
	netRefused  *prometheus.Desc
	netCommands *prometheus.Desc
	netErrors   *prometheus.Desc

	ringFill *prometheus.Desc
}

func newCollector(source Source) *collector {
	desc := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, sub, name), help, labels, nil)
	}
	return &collector{
		source: source,

		gain:      desc("dsp", "gain_ratio", "Current linear gain."),
		muted:     desc("dsp", "muted", "1 while output is muted."),
		underruns: desc("audio", "underruns_total", "Consumer starvations since the last counter reset."),
		overruns:  desc("audio", "overruns_total", "Rejected ring pushes since the last counter reset."),
		dropped:   desc("audio", "dropped_total", "Frames lost on the USB path since the last counter reset."),

		usbStreaming: desc("usb", "streaming", "1 while the host is streaming."),
		usbPackets:   desc("usb", "packets_out_total", "OUT packets received from the host."),
		usbFrames:    desc("usb", "frames_total", "Frames moved across the USB interface.", "direction"),
		usbDropped:   desc("usb", "dropped_packets_total", "USB packets discarded."),
		usbStarved:   desc("usb", "starved_packets_total", "IN packets sent as silence for lack of processed audio."),
		usbSessions:  desc("usb", "sessions_total", "Host attach count."),

		netState:    desc("control", "state", "Control plane state.", "state"),
		netSessions: desc("control", "sessions_total", "Control clients served."),
		netRefused:  desc("control", "refused_total", "Control clients refused while busy."),
		netCommands: desc("control", "commands_total", "Control commands applied."),
		netErrors:   desc("control", "errors_total", "Control lines rejected."),

		ringFill: desc("audio", "ring_frames", "Frames queued in each ring.", "ring"),
	}
}

// Describe implements prometheus.Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.gain, c.muted, c.underruns, c.overruns, c.dropped,
		c.usbStreaming, c.usbPackets, c.usbFrames, c.usbDropped, c.usbStarved, c.usbSessions,
		c.netState, c.netSessions, c.netRefused, c.netCommands, c.netErrors,
		c.ringFill,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	gauge(c.gain, s.Gain)
	gauge(c.muted, boolValue(s.Muted))
	counter(c.underruns, float64(s.Underruns))
	counter(c.overruns, float64(s.Overruns))
	counter(c.dropped, float64(s.Dropped))

	gauge(c.usbStreaming, boolValue(s.USB.State == "streaming"))
	counter(c.usbPackets, float64(s.USB.PacketsOut))
	counter(c.usbFrames, float64(s.USB.FramesIn), "in")
	counter(c.usbFrames, float64(s.USB.FramesOut), "out")
	counter(c.usbDropped, float64(s.USB.Dropped))
	counter(c.usbStarved, float64(s.USB.Starved))
	counter(c.usbSessions, float64(s.USB.Sessions))

	gauge(c.netState, 1, s.Network.State)
	counter(c.netSessions, float64(s.Network.Sessions))
	counter(c.netRefused, float64(s.Network.Refused))
	counter(c.netCommands, float64(s.Network.Commands))
	counter(c.netErrors, float64(s.Network.Errors))

	gauge(c.ringFill, float64(s.Rings.Input), "input")
	gauge(c.ringFill, float64(s.Rings.Output), "output")
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
