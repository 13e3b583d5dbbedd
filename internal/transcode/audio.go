package transcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tvjuke/tvjuke/internal/config"
	"github.com/tvjuke/tvjuke/internal/ffmpeg"
)

// Audio processing labels recorded on each artifact.
const (
	ProcessingUpmix       = "5.1-upmix"
	ProcessingPassthrough = "5.1-passthrough"
	ProcessingStereo      = "stereo-compatible"
	ProcessingNone        = "none"
)

// audioPlan is the resolved audio treatment for one transcode.
type audioPlan struct {
	Filter         string
	Codec          string
	Bitrate        string
	OutputChannels int
	OutputLayout   string
	Processing     string
}

// builtinNormalizationPresets are used when the config does not define a
// preset for the selected strength.
var builtinNormalizationPresets = map[string]config.NormalizationPreset{
	"light":      {TargetLUFS: -18, TruePeak: -2.0, LRA: 14},
	"standard":   {TargetLUFS: -16, TruePeak: -1.5, LRA: 11},
	"aggressive": {TargetLUFS: -14, TruePeak: -1.0, LRA: 7},
}

// resolveNormalization expands the strength preset and applies per-field
// overrides. Returns the loudnorm filter string, or "" when disabled.
func resolveNormalization(cfg config.NormalizationConfig) string {
	if !cfg.Enabled {
		return ""
	}

	preset, ok := cfg.Presets[cfg.Strength]
	if !ok {
		preset, ok = builtinNormalizationPresets[cfg.Strength]
		if !ok {
			preset = builtinNormalizationPresets["standard"]
		}
	}
	if cfg.TargetLUFS != 0 {
		preset.TargetLUFS = cfg.TargetLUFS
	}
	if cfg.TruePeak != 0 {
		preset.TruePeak = cfg.TruePeak
	}
	if cfg.LRA != 0 {
		preset.LRA = cfg.LRA
	}

	filter := fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=%s",
		fmtLevel(preset.TargetLUFS), fmtLevel(preset.TruePeak), fmtLevel(preset.LRA))
	if cfg.DualMono {
		filter += ":dual_mono=true"
	}
	return filter
}

// fmtLevel renders a mixing or loudness level without trailing zeros.
func fmtLevel(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// lightNormalization rewrites a normalization config to the light preset,
// dropping per-field overrides so the preset values win.
func lightNormalization(cfg config.NormalizationConfig) config.NormalizationConfig {
	cfg.Strength = "light"
	cfg.TargetLUFS = 0
	cfg.TruePeak = 0
	cfg.LRA = 0
	return cfg
}

// planAudioFilter selects the filter chain and output shape for the probed
// audio. Channel-count branches produce a 5.1 pan; six or more channels are
// preserved when the layout already is 5.1 and preservation is configured.
func planAudioFilter(md *ffmpeg.Metadata, audio config.AudioConfig) audioPlan {
	if !md.HasAudio || md.AudioChannels == 0 {
		return audioPlan{Processing: ProcessingNone}
	}

	norm := resolveNormalization(audio.Normalization)
	up := audio.StereoUpmixing
	rear, center, lfe := fmtLevel(up.RearChannelLevel), fmtLevel(up.CenterChannelLevel), fmtLevel(up.LFEChannelLevel)

	var chain []string
	if norm != "" {
		chain = append(chain, norm)
	}

	plan := audioPlan{OutputChannels: 6, OutputLayout: "5.1", Processing: ProcessingUpmix}

	switch ch := md.AudioChannels; {
	case ch == 1:
		chain = append(chain, fmt.Sprintf(
			"pan=5.1|FL=c0|FR=c0|FC=%s*c0|LFE=%s*c0|BL=%s*c0|BR=%s*c0",
			center, lfe, rear, rear))
	case ch == 2:
		chain = append(chain, fmt.Sprintf(
			"pan=5.1|FL=FL|FR=FR|FC=%s*FL+%s*FR|LFE=%s*FL+%s*FR|BL=%s*FL|BR=%s*FR",
			center, center, lfe, lfe, rear, rear))
	case ch == 3:
		chain = append(chain, "aresample=48000", fmt.Sprintf(
			"pan=5.1|FL=c0|FR=c1|FC=%s*c0+%s*c1|LFE=c2|BL=%s*c0|BR=%s*c1",
			center, center, rear, rear))
	case ch == 4:
		chain = append(chain, "aresample=48000", fmt.Sprintf(
			"pan=5.1|FL=c0|FR=c1|FC=%s*c0+%s*c1|LFE=%s*c0+%s*c1|BL=c2|BR=c3",
			center, center, lfe, lfe))
	case ch == 5:
		chain = append(chain, "aresample=48000", fmt.Sprintf(
			"pan=5.1|FL=c0|FR=c1|FC=c2|LFE=%s*c0+%s*c1|BL=c3|BR=c4",
			lfe, lfe))
	default: // >= 6
		layout := md.EffectiveChannelLayout()
		if audio.Compatibility.PreserveOriginalIfMultichannel && (layout == "5.1" || layout == "5.1(side)") {
			plan.Processing = ProcessingPassthrough
			plan.OutputLayout = layout
			// A mastered 5.1 mix only gets the light touch.
			if norm != "" {
				chain = []string{resolveNormalization(lightNormalization(audio.Normalization))}
			}
		}
		// Chain stays normalization-only either way; non-preserved inputs
		// are folded to 5.1 by the output channel count.
	}

	plan.Filter = strings.Join(chain, ",")
	return plan
}

// stereoFallbackPlan is the compatibility treatment: plain two-channel AAC
// with normalization only.
func stereoFallbackPlan(audio config.AudioConfig) audioPlan {
	return audioPlan{
		Filter:         resolveNormalization(audio.Normalization),
		Codec:          "aac",
		Bitrate:        capBitrate(audio.CodecPreferences.StereoBitrate, 256),
		OutputChannels: 2,
		OutputLayout:   "stereo",
		Processing:     ProcessingStereo,
	}
}

// selectAudioCodec fills the plan's codec and bitrate from the configured
// preferences. forceAAC pins AAC with conservative bitrate caps.
func (t *Transcoder) selectAudioCodec(plan *audioPlan, audio config.AudioConfig) {
	prefs := audio.CodecPreferences
	multichannel := plan.OutputChannels > 2

	if audio.Compatibility.ForceAAC {
		plan.Codec = "aac"
		if multichannel {
			plan.Bitrate = capBitrate(prefs.MultichannelBitrate, 384)
		} else {
			plan.Bitrate = capBitrate(prefs.StereoBitrate, 256)
		}
		return
	}

	if multichannel {
		codec := prefs.Multichannel
		if codec == "" {
			codec = "aac"
		}
		if codec == "ac3" {
			t.logger.Warn("ac3 output configured; some clients cannot decode it")
		}
		plan.Codec = codec
		plan.Bitrate = prefs.MultichannelBitrate
		return
	}

	plan.Codec = prefs.Stereo
	if plan.Codec == "" {
		plan.Codec = "aac"
	}
	plan.Bitrate = prefs.StereoBitrate
}

// capBitrate parses a "NNNk" bitrate and clamps it to maxKbps.
func capBitrate(bitrate string, maxKbps int) string {
	s := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(bitrate)), "k")
	kbps, err := strconv.Atoi(s)
	if err != nil || kbps <= 0 || kbps > maxKbps {
		kbps = maxKbps
	}
	return strconv.Itoa(kbps) + "k"
}

// wantsStereoFallback reports whether configuration alone forces stereo
// output, before any compatibility retry.
func wantsStereoFallback(audio config.AudioConfig) bool {
	if !audio.Enable51Processing {
		return true
	}
	if audio.ForceOutputChannels == 2 {
		return true
	}
	return audio.Compatibility.CompatibilityMode == "stereo"
}

// shouldRetryStereo reports whether a failed attempt earns the single stereo
// compatibility retry. The retry is opt-in via fallback_to_stereo and never
// fires when the first attempt was already stereo.
func shouldRetryStereo(audio config.AudioConfig, firstWasFallback bool, err error) bool {
	if err == nil || firstWasFallback {
		return false
	}
	return audio.Compatibility.FallbackToStereo && isAudioError(err)
}

// audioErrorSubstrings mark FFmpeg failures worth one stereo retry.
var audioErrorSubstrings = []string{"audio", "pan", "loudnorm", "channel"}

// isAudioError reports whether the error text points at the audio chain.
func isAudioError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	var re *ffmpeg.RunError
	if errors.As(err, &re) {
		msg += " " + strings.ToLower(re.Stderr)
	}
	for _, s := range audioErrorSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
