package downloader

import (
	"testing"
	"time"

	"favsync/shared/logger"

	"github.com/stretchr/testify/assert"
)

func TestResolvePathTemplate(t *testing.T) {
	now := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)
	log := logger.NewDefault().Logger

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "no placeholders",
			template: "media/talks",
			want:     "media/talks",
		},
		{
			name:     "year and month",
			template: "media/music/{YYYY}-{MM}",
			want:     "media/music/2026-08",
		},
		{
			name:     "all placeholders",
			template: "{YYYY}/{YY}/{MM}/{DD}/{HH}/{mm}/{SS}",
			want:     "2026/26/08/30/14/05/09",
		},
		{
			name:     "unknown placeholder falls back to literal",
			template: "media/{TITLE}/{YYYY}",
			want:     "media/{TITLE}/{YYYY}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePathTemplate(tt.template, now, log))
		})
	}
}

func TestBuildArgs(t *testing.T) {
	log := logger.NewDefault().Logger

	t.Run("minimal", func(t *testing.T) {
		d := NewYuttoDownloader("", "", log)
		args := d.buildArgs(Request{Bvid: "BV1", Dest: "media/talks"})

		assert.Contains(t, args, "-d")
		assert.Contains(t, args, "media/talks")
		assert.NotContains(t, args, "-c")
		assert.NotContains(t, args, "--batch")
		assert.Equal(t, "https://www.bilibili.com/video/BV1", args[len(args)-1])
	})

	t.Run("with credential, batch and template", func(t *testing.T) {
		d := NewYuttoDownloader("yutto", "sess", log)
		args := d.buildArgs(Request{
			Bvid:         "BV2",
			Dest:         "media/music",
			Batch:        true,
			NameTemplate: "{title}",
		})

		assert.Contains(t, args, "-c")
		assert.Contains(t, args, "sess")
		assert.Contains(t, args, "--batch")
		assert.Contains(t, args, "--subpath-template")
		assert.Contains(t, args, "{title}")
	})
}
