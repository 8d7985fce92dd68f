package export

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/zoomreel/internal/timeline"
)

func TestSampleCount(t *testing.T) {
	tests := []struct {
		duration float64
		fps      int
		want     int
	}{
		{3, 30, 90},
		{0.3, 30, 9},
		{1.0 / 3, 60, 20},
		{2.99, 30, 89},
		{0, 30, 0},
		{-1, 30, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SampleCount(tt.duration, tt.fps), "%v@%d", tt.duration, tt.fps)
	}
}

func TestBuildPlan(t *testing.T) {
	zoom := []timeline.ZoomKeyframe{{ID: "a", StartTime: 2, EndTime: 5, X: 80, Y: 20, Scale: 2}}
	text := []timeline.TextOverlayKeyframe{{ID: "t", StartTime: 3, EndTime: 4, Text: "x", FontSize: 10}}
	plan := BuildPlan(6, 24, timeline.NewTimeline(zoom), text)

	require.Len(t, plan.Samples, 144)
	for i, s := range plan.Samples {
		assert.Equal(t, i, s.Index)
		assert.InDelta(t, float64(i)/24, s.Time, 1e-12)
	}

	mid := plan.Samples[84] // 3.5s
	assert.Equal(t, timeline.StateExact, mid.State.Kind)
	assert.Equal(t, 2.0, mid.State.Scale)
	require.Len(t, mid.Overlays, 1)
	assert.Empty(t, plan.Samples[0].Overlays)
}

func TestBatches(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 15}, {15, 30}, {30, 32}}, Batches(32, 15))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, Batches(2, 0))
	assert.Empty(t, Batches(0, 15))
}

func TestReporterClampsProgress(t *testing.T) {
	var got []JobState
	r := newReporter(func(s JobState) { got = append(got, s) })

	r.report(StageCapturing, 30, "")
	r.report(StageCapturing, 20, "")
	r.report(StageInitializing, 40, "")
	r.report(StageProcessing, 150, "")
	r.report(StageComplete, 100, "")
	r.report(StageEncoding, 100, "")
	r.fail(&Error{Kind: KindEncodeFailure})

	require.Len(t, got, 4)
	assert.Equal(t, 30.0, got[1].Progress)
	assert.Equal(t, StageCapturing, got[1].Stage)
	assert.Equal(t, 100.0, got[2].Progress)
	assert.Equal(t, StageComplete, got[3].Stage)
}

func TestReporterFailIsTerminal(t *testing.T) {
	var got []JobState
	r := newReporter(func(s JobState) { got = append(got, s) })
	r.report(StageProcessing, 60, "")
	r.fail(&Error{Kind: KindFrameCaptureFailure, Stage: StageProcessing, Err: assert.AnError})
	r.report(StageComplete, 100, "")

	require.Len(t, got, 2)
	assert.Equal(t, StageError, got[1].Stage)
	assert.Equal(t, 60.0, got[1].Progress)
	assert.ErrorIs(t, got[1].Err, assert.AnError)
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 99, 255})
		}
	}
	return img
}

func TestSpoolsRoundTrip(t *testing.T) {
	disk, err := NewDiskSpool(t.TempDir())
	require.NoError(t, err)

	for name, spool := range map[string]Spool{"disk": disk, "memory": NewMemorySpool(0)} {
		t.Run(name, func(t *testing.T) {
			defer spool.Close()

			// a sub-image has a stride wider than its rows
			full := gradient(16, 16)
			frame := full.SubImage(image.Rect(4, 4, 12, 10)).(*image.RGBA)
			require.NoError(t, spool.PutFrame(7, frame))

			dst := image.NewRGBA(image.Rect(0, 0, 8, 6))
			require.NoError(t, spool.ReadFrame(7, dst))
			for y := 0; y < 6; y++ {
				for x := 0; x < 8; x++ {
					require.Equal(t, full.RGBAAt(x+4, y+4), dst.RGBAAt(x, y))
				}
			}

			spool.DropFrame(7)
			assert.Error(t, spool.ReadFrame(7, dst))

			require.NoError(t, spool.PutPayload(3, []byte("payload")))
			data, err := spool.ReadPayload(3)
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), data)

			_, err = spool.ReadPayload(4)
			assert.Error(t, err)
		})
	}
}

func TestMemorySpoolBounded(t *testing.T) {
	spool := NewMemorySpool(2)
	defer spool.Close()
	frame := gradient(4, 4)

	require.NoError(t, spool.PutFrame(0, frame))
	require.NoError(t, spool.PutFrame(1, frame))
	require.NoError(t, spool.PutFrame(1, frame), "replacing a frame does not grow the spool")

	err := spool.PutFrame(2, frame)
	assert.ErrorIs(t, err, ErrSpoolFull)
	assert.Equal(t, KindResourceExhausted, classify(err, KindFrameCaptureFailure))

	// dropped frames free their slot
	spool.DropFrame(0)
	assert.NoError(t, spool.PutFrame(2, frame))
}

func TestCodecs(t *testing.T) {
	img := gradient(16, 16)

	var buf bytes.Buffer
	require.NoError(t, NewPNGCodec().Encode(&buf, img))
	assert.Equal(t, img.Pix, decodePNG(t, buf.Bytes()).Pix)

	buf.Reset()
	require.NoError(t, WebPCodec{}.Encode(&buf, img))
	decoded, err := webp.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			r, g, b, a := decoded.At(x, y).RGBA()
			want := img.RGBAAt(x, y)
			require.Equal(t, []uint32{uint32(want.R), uint32(want.G), uint32(want.B), 255}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
		}
	}

	buf.Reset()
	require.NoError(t, JPEGCodec{Quality: 80}.Encode(&buf, img))
	assert.Equal(t, []byte{0xff, 0xd8}, buf.Bytes()[:2])

	for name, ext := range map[string]string{"": "png", "PNG": "png", "jpeg": "jpg", "jpg": "jpg", "webp": "webp"} {
		c, err := CodecByName(name, 90)
		require.NoError(t, err)
		assert.Equal(t, ext, c.Ext())
	}
	_, err = CodecByName("gif", 90)
	assert.Error(t, err)
}

func TestErrorKinds(t *testing.T) {
	err := &Error{Kind: KindSeekTimeout, Stage: StageCapturing, Err: assert.AnError}
	assert.Equal(t, KindSeekTimeout, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(assert.AnError))
	assert.Contains(t, err.Error(), "seek_timeout")
	assert.Contains(t, err.Error(), "capturing")
	assert.True(t, StageComplete.Terminal())
	assert.True(t, StageError.Terminal())
	assert.False(t, StageEncoding.Terminal())
}
