package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
)

// Discord voice expects 48kHz stereo Opus in 20ms frames.
const (
	opusSampleRate     = 48000
	opusFrameSamples   = 960
	defaultOpusBitRate = 96000
)

// opusTranscoder decodes any audio container libav understands and
// re-encodes it as Opus frames ready for a voice connection.
type opusTranscoder struct {
	bitRate int

	ioCtx            *astiav.IOContext
	inputCtx         *astiav.FormatContext
	decoderCtx       *astiav.CodecContext
	encoderCtx       *astiav.CodecContext
	audioStreamIndex int

	packet        *astiav.Packet
	frame         *astiav.Frame
	resampleCtx   *astiav.SoftwareResampleContext
	resampleFrame *astiav.Frame
	fifo          *astiav.AudioFifo
	pts           int64
}

func newOpusTranscoder(bitRate int) *opusTranscoder {
	if bitRate <= 0 {
		bitRate = defaultOpusBitRate
	}
	return &opusTranscoder{
		bitRate:          bitRate,
		audioStreamIndex: -1,
		packet:           astiav.AllocPacket(),
		frame:            astiav.AllocFrame(),
		resampleFrame:    astiav.AllocFrame(),
	}
}

// Open probes r and prepares the decoder and encoder. It blocks until
// enough input has arrived to identify the audio stream.
func (t *opusTranscoder) Open(r io.Reader) error {
	if err := t.openInput(r); err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	if err := t.setupDecoder(); err != nil {
		return fmt.Errorf("setup decoder: %w", err)
	}
	if err := t.setupEncoder(); err != nil {
		return fmt.Errorf("setup encoder: %w", err)
	}
	return nil
}

func (t *opusTranscoder) openInput(r io.Reader) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to allocate format context")
	}

	ioCtx, err := astiav.AllocIOContext(16*1024, false, r.Read, func(int64, int) (int64, error) {
		return 0, errors.New("seek not supported")
	}, nil)
	if err != nil {
		return err
	}
	t.ioCtx = ioCtx
	t.inputCtx.SetPb(ioCtx)
	t.inputCtx.SetFlags(t.inputCtx.Flags().Add(astiav.FormatContextFlagCustomIo))

	opts := astiav.NewDictionary()
	defer opts.Free()
	opts.Set("probesize", "1000000", 0)
	opts.Set("analyzeduration", "5000000", 0)

	if err := t.inputCtx.OpenInput("", nil, opts); err != nil {
		return err
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return err
	}

	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStreamIndex = s.Index()
			break
		}
	}
	if t.audioStreamIndex == -1 {
		return errors.New("no audio stream")
	}
	return nil
}

func (t *opusTranscoder) setupDecoder() error {
	params := t.inputCtx.Streams()[t.audioStreamIndex].CodecParameters()
	decoder := astiav.FindDecoder(params.CodecID())
	if decoder == nil {
		return fmt.Errorf("no decoder for %s", params.CodecID())
	}
	t.decoderCtx = astiav.AllocCodecContext(decoder)
	if err := params.ToCodecContext(t.decoderCtx); err != nil {
		return err
	}
	return t.decoderCtx.Open(decoder, nil)
}

func (t *opusTranscoder) setupEncoder() error {
	encoder := astiav.FindEncoderByName("libopus")
	if encoder == nil {
		encoder = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if encoder == nil {
		return errors.New("no opus encoder")
	}

	t.encoderCtx = astiav.AllocCodecContext(encoder)
	t.encoderCtx.SetBitRate(int64(t.bitRate))
	t.encoderCtx.SetSampleRate(opusSampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, opusSampleRate))

	opts := astiav.NewDictionary()
	defer opts.Free()
	opts.Set("vbr", "on", 0)
	opts.Set("application", "audio", 0)
	opts.Set("frame_duration", "20", 0)

	if err := t.encoderCtx.Open(encoder, opts); err != nil {
		return err
	}

	// Configured from the first converted frame.
	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to allocate resampler")
	}
	t.fifo = astiav.AllocAudioFifo(
		t.encoderCtx.SampleFormat(),
		t.encoderCtx.ChannelLayout().Channels(),
		opusFrameSamples*2,
	)
	return nil
}

// Transcode reads the input to the end and hands every Opus frame to emit.
// It stops early when ctx is done or emit fails.
func (t *opusTranscoder) Transcode(ctx context.Context, emit func([]byte) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if t.packet.StreamIndex() != t.audioStreamIndex {
			t.packet.Unref()
			continue
		}

		err := t.decoderCtx.SendPacket(t.packet)
		t.packet.Unref()
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if err := t.drainDecoder(emit); err != nil {
			return err
		}
	}

	// Flush decoder, then the partial last frame, then the encoder.
	if err := t.decoderCtx.SendPacket(nil); err == nil {
		if err := t.drainDecoder(emit); err != nil {
			return err
		}
	}
	if size := t.fifo.Size(); size > 0 {
		if err := t.encodeFromFifo(size, emit); err != nil {
			return err
		}
	}
	if err := t.encoderCtx.SendFrame(nil); err != nil {
		return nil
	}
	return t.receivePackets(emit)
}

// drainDecoder resamples every decoded frame into the fifo and encodes
// whole Opus frames from it.
func (t *opusTranscoder) drainDecoder(emit func([]byte) error) error {
	for {
		if err := t.decoderCtx.ReceiveFrame(t.frame); err != nil {
			return nil
		}

		samples := astiav.RescaleQ(
			int64(t.frame.NbSamples()),
			astiav.NewRational(1, t.frame.SampleRate()),
			astiav.NewRational(1, opusSampleRate),
		)
		if samples > 0 {
			t.prepareResampleFrame(int(samples))
			if err := t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame); err != nil {
				t.frame.Unref()
				return fmt.Errorf("resample: %w", err)
			}
			if _, err := t.fifo.Write(t.resampleFrame); err != nil {
				t.frame.Unref()
				return fmt.Errorf("buffer samples: %w", err)
			}
		}
		t.frame.Unref()

		for t.fifo.Size() >= opusFrameSamples {
			if err := t.encodeFromFifo(opusFrameSamples, emit); err != nil {
				return err
			}
		}
	}
}

func (t *opusTranscoder) prepareResampleFrame(samples int) {
	t.resampleFrame.Unref()
	t.resampleFrame.SetNbSamples(samples)
	t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampleFrame.SetSampleRate(opusSampleRate)
	_ = t.resampleFrame.AllocBuffer(0)
}

func (t *opusTranscoder) encodeFromFifo(samples int, emit func([]byte) error) error {
	t.prepareResampleFrame(samples)
	if _, err := t.fifo.Read(t.resampleFrame); err != nil {
		return fmt.Errorf("read samples: %w", err)
	}
	t.resampleFrame.SetPts(t.pts)
	t.pts += int64(samples)

	if err := t.encoderCtx.SendFrame(t.resampleFrame); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return t.receivePackets(emit)
}

func (t *opusTranscoder) receivePackets(emit func([]byte) error) error {
	for {
		pkt := astiav.AllocPacket()
		if err := t.encoderCtx.ReceivePacket(pkt); err != nil {
			pkt.Free()
			return nil
		}
		data := make([]byte, len(pkt.Data()))
		copy(data, pkt.Data())
		pkt.Free()

		if err := emit(data); err != nil {
			return err
		}
	}
}

// Close frees every libav resource. It must not run concurrently with
// Transcode.
func (t *opusTranscoder) Close() {
	if t.fifo != nil {
		t.fifo.Free()
	}
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
	if t.ioCtx != nil {
		t.ioCtx.Free()
	}
}
