package transcode

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvjuke/tvjuke/internal/config"
	"github.com/tvjuke/tvjuke/internal/ffmpeg"
	"github.com/tvjuke/tvjuke/internal/models"
)

func defaultAudioConfig() config.AudioConfig {
	return config.AudioConfig{
		Enable51Processing: true,
		Normalization: config.NormalizationConfig{
			Enabled:  true,
			Strength: "standard",
			DualMono: true,
		},
		StereoUpmixing: config.UpmixConfig{
			RearChannelLevel:   0.5,
			CenterChannelLevel: 0.5,
			LFEChannelLevel:    0.3,
		},
		CodecPreferences: config.CodecPreferences{
			Stereo:              "aac",
			Multichannel:        "aac",
			StereoBitrate:       "192k",
			MultichannelBitrate: "384k",
		},
		Compatibility: config.CompatibilityConfig{
			PreserveOriginalIfMultichannel: true,
			CompatibilityMode:              "auto",
			FallbackToStereo:               true,
		},
	}
}

func metadataWithChannels(channels int, layout string) *ffmpeg.Metadata {
	return &ffmpeg.Metadata{
		HasAudio:      channels > 0,
		AudioChannels: channels,
		ChannelLayout: layout,
	}
}

func TestResolveNormalization(t *testing.T) {
	cfg := config.NormalizationConfig{Enabled: true, Strength: "standard", DualMono: true}
	assert.Equal(t, "loudnorm=I=-16:TP=-1.5:LRA=11:dual_mono=true", resolveNormalization(cfg))

	cfg.DualMono = false
	assert.Equal(t, "loudnorm=I=-16:TP=-1.5:LRA=11", resolveNormalization(cfg))

	cfg.Enabled = false
	assert.Empty(t, resolveNormalization(cfg))
}

func TestResolveNormalization_FieldOverrides(t *testing.T) {
	cfg := config.NormalizationConfig{
		Enabled:    true,
		Strength:   "aggressive",
		TargetLUFS: -20,
	}
	// TargetLUFS overrides the preset; TP and LRA keep preset values.
	assert.Equal(t, "loudnorm=I=-20:TP=-1:LRA=7", resolveNormalization(cfg))
}

func TestResolveNormalization_UnknownStrengthFallsBack(t *testing.T) {
	cfg := config.NormalizationConfig{Enabled: true, Strength: "bogus"}
	assert.Equal(t, "loudnorm=I=-16:TP=-1.5:LRA=11", resolveNormalization(cfg))
}

func TestPlanAudioFilter_NoAudio(t *testing.T) {
	plan := planAudioFilter(metadataWithChannels(0, ""), defaultAudioConfig())
	assert.Equal(t, ProcessingNone, plan.Processing)
	assert.Empty(t, plan.Filter)
	assert.Zero(t, plan.OutputChannels)
}

func TestPlanAudioFilter_MonoUpmix(t *testing.T) {
	plan := planAudioFilter(metadataWithChannels(1, "mono"), defaultAudioConfig())
	assert.Equal(t, ProcessingUpmix, plan.Processing)
	assert.Equal(t, 6, plan.OutputChannels)
	assert.Equal(t, "5.1", plan.OutputLayout)
	assert.Contains(t, plan.Filter, "loudnorm=")
	assert.Contains(t, plan.Filter, "pan=5.1|FL=c0|FR=c0|FC=0.5*c0|LFE=0.3*c0|BL=0.5*c0|BR=0.5*c0")
}

func TestPlanAudioFilter_StereoUpmixLevels(t *testing.T) {
	cfg := defaultAudioConfig()
	cfg.StereoUpmixing.RearChannelLevel = 0.7

	plan := planAudioFilter(metadataWithChannels(2, "stereo"), cfg)
	assert.Equal(t, ProcessingUpmix, plan.Processing)
	assert.Contains(t, plan.Filter, "BL=0.7*FL|BR=0.7*FR")
	assert.Contains(t, plan.Filter, "FC=0.5*FL+0.5*FR")
	assert.Contains(t, plan.Filter, "LFE=0.3*FL+0.3*FR")
}

func TestPlanAudioFilter_IntermediateCountsResample(t *testing.T) {
	for _, channels := range []int{3, 4, 5} {
		t.Run(fmt.Sprintf("%dch", channels), func(t *testing.T) {
			plan := planAudioFilter(metadataWithChannels(channels, ""), defaultAudioConfig())
			assert.Equal(t, ProcessingUpmix, plan.Processing)
			assert.Contains(t, plan.Filter, "aresample=48000")
			assert.Contains(t, plan.Filter, "pan=5.1|")
			assert.Equal(t, 6, plan.OutputChannels)
		})
	}
}

func TestPlanAudioFilter_Preserve51(t *testing.T) {
	for _, layout := range []string{"5.1", "5.1(side)"} {
		plan := planAudioFilter(metadataWithChannels(6, layout), defaultAudioConfig())
		assert.Equal(t, ProcessingPassthrough, plan.Processing)
		assert.Equal(t, layout, plan.OutputLayout)
		assert.NotContains(t, plan.Filter, "pan=")
		// Preserved mixes always get the light preset, not the configured
		// standard strength.
		assert.Equal(t, "loudnorm=I=-18:TP=-2:LRA=14:dual_mono=true", plan.Filter)
	}
}

func TestPlanAudioFilter_MultichannelNoPreserve(t *testing.T) {
	cfg := defaultAudioConfig()
	cfg.Compatibility.PreserveOriginalIfMultichannel = false

	plan := planAudioFilter(metadataWithChannels(6, "5.1"), cfg)
	assert.Equal(t, ProcessingUpmix, plan.Processing)
	assert.Equal(t, "5.1", plan.OutputLayout)
	assert.NotContains(t, plan.Filter, "pan=")
}

func TestPlanAudioFilter_71FoldsTo51(t *testing.T) {
	plan := planAudioFilter(metadataWithChannels(8, "7.1"), defaultAudioConfig())
	assert.Equal(t, ProcessingUpmix, plan.Processing)
	assert.Equal(t, 6, plan.OutputChannels)
	assert.Equal(t, "5.1", plan.OutputLayout)
}

func TestSelectAudioCodec_ForceAACCaps(t *testing.T) {
	tr := &Transcoder{logger: testLogger()}
	cfg := defaultAudioConfig()
	cfg.Compatibility.ForceAAC = true
	cfg.CodecPreferences.MultichannelBitrate = "640k"
	cfg.CodecPreferences.StereoBitrate = "320k"

	multi := audioPlan{OutputChannels: 6}
	tr.selectAudioCodec(&multi, cfg)
	assert.Equal(t, "aac", multi.Codec)
	assert.Equal(t, "384k", multi.Bitrate)

	stereo := audioPlan{OutputChannels: 2}
	tr.selectAudioCodec(&stereo, cfg)
	assert.Equal(t, "aac", stereo.Codec)
	assert.Equal(t, "256k", stereo.Bitrate)
}

func TestSelectAudioCodec_Preferences(t *testing.T) {
	tr := &Transcoder{logger: testLogger()}
	cfg := defaultAudioConfig()
	cfg.CodecPreferences.Multichannel = "ac3"
	cfg.CodecPreferences.MultichannelBitrate = "448k"

	plan := audioPlan{OutputChannels: 6}
	tr.selectAudioCodec(&plan, cfg)
	assert.Equal(t, "ac3", plan.Codec)
	assert.Equal(t, "448k", plan.Bitrate)

	stereo := audioPlan{OutputChannels: 2}
	tr.selectAudioCodec(&stereo, cfg)
	assert.Equal(t, "aac", stereo.Codec)
	assert.Equal(t, "192k", stereo.Bitrate)
}

func TestStereoFallbackPlan(t *testing.T) {
	plan := stereoFallbackPlan(defaultAudioConfig())
	assert.Equal(t, ProcessingStereo, plan.Processing)
	assert.Equal(t, "aac", plan.Codec)
	assert.Equal(t, 2, plan.OutputChannels)
	assert.Equal(t, "stereo", plan.OutputLayout)
	assert.Contains(t, plan.Filter, "loudnorm=")
	assert.NotContains(t, plan.Filter, "pan=")
}

func TestCapBitrate(t *testing.T) {
	assert.Equal(t, "192k", capBitrate("192k", 256))
	assert.Equal(t, "256k", capBitrate("320k", 256))
	assert.Equal(t, "384k", capBitrate("", 384))
	assert.Equal(t, "384k", capBitrate("garbage", 384))
}

func TestWantsStereoFallback(t *testing.T) {
	cfg := defaultAudioConfig()
	assert.False(t, wantsStereoFallback(cfg))

	cfg.Enable51Processing = false
	assert.True(t, wantsStereoFallback(cfg))

	cfg = defaultAudioConfig()
	cfg.Compatibility.CompatibilityMode = "stereo"
	assert.True(t, wantsStereoFallback(cfg))
}

func TestShouldRetryStereo(t *testing.T) {
	cfg := defaultAudioConfig()
	audioErr := errors.New("invalid pan specification")

	assert.True(t, shouldRetryStereo(cfg, false, audioErr))
	assert.False(t, shouldRetryStereo(cfg, false, nil))
	assert.False(t, shouldRetryStereo(cfg, true, audioErr))
	assert.False(t, shouldRetryStereo(cfg, false, errors.New("no space left on device")))

	cfg.Compatibility.FallbackToStereo = false
	assert.False(t, shouldRetryStereo(cfg, false, audioErr))
}

func TestIsAudioError(t *testing.T) {
	assert.False(t, isAudioError(nil))
	assert.True(t, isAudioError(models.ErrIncompatibleAudio))
	assert.False(t, isAudioError(errors.New("no space left on device")))
	assert.True(t, isAudioError(errors.New("invalid pan specification")))
	assert.True(t, isAudioError(fmt.Errorf("running: %w", &ffmpeg.RunError{
		Err:    errors.New("exit status 1"),
		Stderr: "Error applying loudnorm filter",
	})))
	assert.True(t, isAudioError(&ffmpeg.RunError{
		Err:    errors.New("exit status 1"),
		Stderr: "channel layout mismatch",
	}))
}

func TestResolveLimits_PresetsAndOverrides(t *testing.T) {
	cfg := config.PerformanceConfig{Mode: "efficiency"}
	limits := resolveLimits(cfg)
	assert.Equal(t, 1, limits.MaxThreads)
	assert.Equal(t, 2*time.Second, limits.ProcessingDelay)
	assert.Equal(t, 256, limits.ThreadQueueSize)

	cfg.CPULimiting = config.CPULimitingConfig{
		Enabled:         true,
		MaxThreads:      1,
		ProcessingDelay: 100 * time.Millisecond,
	}
	limits = resolveLimits(cfg)
	assert.Equal(t, 1, limits.MaxThreads)
	assert.Equal(t, 100*time.Millisecond, limits.ProcessingDelay)
	assert.Equal(t, 256, limits.ThreadQueueSize)
}

func TestResolveLimits_AutoThreads(t *testing.T) {
	limits := resolveLimits(config.PerformanceConfig{Mode: "quality"})
	require.GreaterOrEqual(t, limits.MaxThreads, 1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
