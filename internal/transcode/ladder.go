package transcode

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
)

const (
	// SegmentSeconds is the HLS segment length.
	SegmentSeconds  = 6
	audioSampleRate = 48000
)

// Rendition is one rung of the HLS ladder.
type Rendition struct {
	Label        string
	Width        int32
	Height       int32
	MaxBitrate   int32
	QVBRLevel    int32
	Profile      types.H264CodecProfile
	AudioBitrate int32
}

// DefaultLadder is the fixed rendition ladder applied to every recording.
var DefaultLadder = []Rendition{
	{Label: "1080p", Width: 1920, Height: 1080, MaxBitrate: 8_000_000, QVBRLevel: 8, Profile: types.H264CodecProfileHigh, AudioBitrate: 192_000},
	{Label: "720p", Width: 1280, Height: 720, MaxBitrate: 4_000_000, QVBRLevel: 7, Profile: types.H264CodecProfileHigh, AudioBitrate: 128_000},
	{Label: "480p", Width: 854, Height: 480, MaxBitrate: 2_000_000, QVBRLevel: 7, Profile: types.H264CodecProfileMain, AudioBitrate: 96_000},
}

// Labels returns the rendition labels of a ladder, in order.
func Labels(ladder []Rendition) []string {
	out := make([]string, 0, len(ladder))
	for _, r := range ladder {
		out = append(out, r.Label)
	}
	return out
}

func (r Rendition) output() types.Output {
	return types.Output{
		NameModifier: aws.String("_" + r.Label),
		ContainerSettings: &types.ContainerSettings{
			Container: types.ContainerTypeM3u8,
		},
		VideoDescription: &types.VideoDescription{
			Width:  aws.Int32(r.Width),
			Height: aws.Int32(r.Height),
			CodecSettings: &types.VideoCodecSettings{
				Codec: types.VideoCodecH264,
				H264Settings: &types.H264Settings{
					RateControlMode: types.H264RateControlModeQvbr,
					MaxBitrate:      aws.Int32(r.MaxBitrate),
					QvbrSettings: &types.H264QvbrSettings{
						QvbrQualityLevel: aws.Int32(r.QVBRLevel),
					},
					CodecProfile:      r.Profile,
					SceneChangeDetect: types.H264SceneChangeDetectTransitionDetection,
				},
			},
		},
		AudioDescriptions: []types.AudioDescription{
			{
				CodecSettings: &types.AudioCodecSettings{
					Codec: types.AudioCodecAac,
					AacSettings: &types.AacSettings{
						Bitrate:    aws.Int32(r.AudioBitrate),
						CodingMode: types.AacCodingModeCodingMode20,
						SampleRate: aws.Int32(audioSampleRate),
					},
				},
			},
		},
	}
}

// jobSettings builds one HLS output group covering the whole ladder.
func jobSettings(sourceURI, destination string, ladder []Rendition) *types.JobSettings {
	outputs := make([]types.Output, 0, len(ladder))
	for _, r := range ladder {
		outputs = append(outputs, r.output())
	}
	return &types.JobSettings{
		Inputs: []types.Input{
			{
				FileInput: aws.String(sourceURI),
				AudioSelectors: map[string]types.AudioSelector{
					"Audio Selector 1": {DefaultSelection: types.AudioDefaultSelectionDefault},
				},
				VideoSelector:  &types.VideoSelector{},
				TimecodeSource: types.InputTimecodeSourceZerobased,
			},
		},
		OutputGroups: []types.OutputGroup{
			{
				Name: aws.String("HLS"),
				OutputGroupSettings: &types.OutputGroupSettings{
					Type: types.OutputGroupTypeHlsGroupSettings,
					HlsGroupSettings: &types.HlsGroupSettings{
						Destination:        aws.String(destination),
						SegmentLength:      aws.Int32(SegmentSeconds),
						MinSegmentLength:   aws.Int32(0),
						DirectoryStructure: types.HlsDirectoryStructureSingleDirectory,
						OutputSelection:    types.HlsOutputSelectionManifestsAndSegments,
						SegmentControl:     types.HlsSegmentControlSegmentedFiles,
					},
				},
				Outputs: outputs,
			},
		},
	}
}
