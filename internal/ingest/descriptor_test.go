package ingest

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/models"
)

func TestDescriptorValidate(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	valid := Descriptor{RecordingID: "rec_1", MeetingID: "m_1", RecordingStart: start, RecordingEnd: start.Add(time.Minute)}
	require.NoError(t, valid.Validate())

	open := valid
	open.RecordingEnd = time.Time{}
	assert.NoError(t, open.Validate())

	tests := []struct {
		name  string
		edit  func(d *Descriptor)
		field string
	}{
		{"missing recording id", func(d *Descriptor) { d.RecordingID = "" }, "RecordingID"},
		{"missing meeting id", func(d *Descriptor) { d.MeetingID = "" }, "MeetingID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.edit(&d)
			err := d.Validate()
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field())
			assert.Equal(t, "required", verrs[0].Tag())
		})
	}

	reversed := valid
	reversed.RecordingEnd = start.Add(-time.Minute)
	assert.EqualError(t, reversed.Validate(), "recording end precedes start")
}

func TestDescriptorFromRecording(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	d := descriptorFromRecording(models.Recording{
		RecordingID:    "rec_1",
		MeetingID:      "m_1",
		Topic:          "Weekly sync",
		FileExtension:  "MP4",
		RecordingStart: start,
		RecordingEnd:   start.Add(time.Minute),
		DownloadURL:    "https://zoom.example/rec/download/rec_1",
	})
	require.NoError(t, d.Validate())
	assert.True(t, d.Transcodable())
	assert.Equal(t, "https://zoom.example/rec/download/rec_1", d.recordingAttrs("k").DownloadURL)
}
