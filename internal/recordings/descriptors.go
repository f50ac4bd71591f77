package recordings

import (
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/ingest"
	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/internal/zoom"
)

// Descriptors converts the completed files of a provider meeting into ingest descriptors.
// hostName may be empty; the coordinator then resolves it.
func Descriptors(m zoom.RecordingMeeting, hostName string) []ingest.Descriptor {
	files := m.CompletedFiles()
	out := make([]ingest.Descriptor, 0, len(files))
	for _, f := range files {
		out = append(out, ingest.Descriptor{
			RecordingID:    f.ID,
			MeetingID:      m.ID.String(),
			MeetingUUID:    m.UUID,
			Topic:          m.Topic,
			HostID:         m.HostID,
			HostName:       hostName,
			FileType:       f.FileType,
			FileExtension:  f.FileExtension,
			FileSizeBytes:  f.FileSize,
			RecordingStart: f.RecordingStart.Time,
			RecordingEnd:   f.RecordingEnd.Time,
			MeetingStart:   m.StartTime.Time,
			DownloadURL:    f.DownloadURL,
		})
	}
	return out
}
