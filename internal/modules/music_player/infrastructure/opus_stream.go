package infrastructure

import (
	"context"
	"io"
	"sync"
)

// opusStreamBuffer is how many frames may wait for the sender, about one
// second of audio.
const opusStreamBuffer = 50

// opusPacketSource yields 20ms Opus frames until io.EOF.
type opusPacketSource interface {
	NextOpusPacket() ([]byte, error)
}

// opusProducer writes frames through emit until the audio ends. ctx is
// cancelled when the stream is closed.
type opusProducer func(ctx context.Context, emit func([]byte) error) error

// opusStream runs a producer in the background and buffers its frames.
type opusStream struct {
	packets chan []byte
	done    chan struct{}
	cancel  context.CancelFunc

	// Written before packets is closed.
	err error

	closeOnce sync.Once
}

var _ opusPacketSource = (*opusStream)(nil)

func startOpusStream(produce opusProducer) *opusStream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &opusStream{
		packets: make(chan []byte, opusStreamBuffer),
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	go func() {
		defer close(s.done)

		s.err = produce(ctx, func(packet []byte) error {
			select {
			case s.packets <- packet:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		close(s.packets)
	}()

	return s
}

// NextOpusPacket returns the next frame, io.EOF once the producer finished
// cleanly, or the producer's error.
func (s *opusStream) NextOpusPacket() ([]byte, error) {
	packet, ok := <-s.packets
	if ok {
		return packet, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

// Close stops the producer and waits for it to exit.
func (s *opusStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
