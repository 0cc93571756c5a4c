package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else
// is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PlaybackRateChanged bool
	NewPlaybackRate     float64

	// RestartRequired names changed settings that only take effect on the
	// next start.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Audio.PlaybackRate != new.Audio.PlaybackRate {
		d.PlaybackRateChanged = true
		d.NewPlaybackRate = new.Audio.PlaybackRate
	}

	// Everything else is bound at startup.
	oldS, newS := old.Server, new.Server
	oldS.LogLevel, newS.LogLevel = "", ""
	if oldS != newS {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	oldA, newA := old.Audio, new.Audio
	oldA.PlaybackRate, newA.PlaybackRate = 0, 0
	if oldA != newA {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !sameCapture(old.Capture, new.Capture) {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if old.Playback != new.Playback {
		d.RestartRequired = append(d.RestartRequired, "playback")
	}
	if old.Status != new.Status {
		d.RestartRequired = append(d.RestartRequired, "status")
	}
	return d
}

func sameCapture(a, b CaptureConfig) bool {
	return a.Driver == b.Driver &&
		a.FFmpegPath == b.FFmpegPath &&
		a.InputFormat == b.InputFormat &&
		a.Device == b.Device &&
		Enabled(a.EchoCancellation) == Enabled(b.EchoCancellation) &&
		Enabled(a.NoiseSuppression) == Enabled(b.NoiseSuppression)
}
