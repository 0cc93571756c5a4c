package main

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxchat/internal/app"
	"github.com/MrWong99/voxchat/internal/config"
	"github.com/MrWong99/voxchat/pkg/audio"
	"github.com/MrWong99/voxchat/pkg/audio/ffmpeg"
	"github.com/MrWong99/voxchat/pkg/audio/speaker"
)

// registerBuiltinDrivers registers every audio driver shipped with voxchat.
func registerBuiltinDrivers(reg *config.Registry, log *slog.Logger) {
	reg.RegisterCapture("ffmpeg", func(cfg *config.Config) (audio.CaptureDevice, error) {
		return &ffmpeg.Device{
			Path:        cfg.Capture.FFmpegPath,
			InputFormat: cfg.Capture.InputFormat,
			Input:       cfg.Capture.Device,
			Log:         log,
		}, nil
	})
	reg.RegisterCapture("none", func(*config.Config) (audio.CaptureDevice, error) {
		return app.NoCapture{}, nil
	})

	reg.RegisterPlayback("ffplay", func(cfg *config.Config) (audio.OutputSink, error) {
		format := audio.Format{SampleRate: cfg.Audio.OutputSampleRate, Channels: 1}
		return ffmpeg.NewSink(cfg.Playback.FFplayPath, format, cfg.Playback.Volume, log), nil
	})
	reg.RegisterPlayback("speaker", func(cfg *config.Config) (audio.OutputSink, error) {
		return speaker.New(cfg.Audio.OutputSampleRate, float64(cfg.Playback.Volume)/100, speaker.DefaultBuffer), nil
	})
	reg.RegisterPlayback("none", func(cfg *config.Config) (audio.OutputSink, error) {
		return app.NewDiscardSink(audio.Format{SampleRate: cfg.Audio.OutputSampleRate, Channels: 1}), nil
	})
}

// buildDevices instantiates the configured drivers.
func buildDevices(cfg *config.Config, reg *config.Registry) (*app.Devices, error) {
	capture, err := reg.CreateCapture(cfg)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	output, err := reg.CreatePlayback(cfg)
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}
	return &app.Devices{Capture: capture, Output: output}, nil
}
