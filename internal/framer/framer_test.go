package framer_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/npsb/npswitch/internal/framer"
)

func TestFeedSingleCompleteFrame(t *testing.T) {
	t.Parallel()

	wire, err := framer.Frame([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := framer.New()
	frames := f.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], []byte("hello")) {
		t.Fatalf("got %q, want %q", frames[0], "hello")
	}
	if f.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", f.Pending())
	}
}

func TestFeedSplitAcrossReads(t *testing.T) {
	t.Parallel()

	wire, err := framer.Frame([]byte("split-me"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := framer.New()
	frames := f.Feed(wire[:3])
	if len(frames) != 0 {
		t.Fatalf("got %d frames from a partial header, want 0", len(frames))
	}

	frames = f.Feed(wire[3:])
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], []byte("split-me")) {
		t.Fatalf("got %q, want %q", frames[0], "split-me")
	}
}

func TestFeedMultipleFramesInOneRead(t *testing.T) {
	t.Parallel()

	a, _ := framer.Frame([]byte("first"))
	b, _ := framer.Frame([]byte("second"))

	f := framer.New()
	frames := f.Feed(append(a, b...))
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], []byte("first")) || !bytes.Equal(frames[1], []byte("second")) {
		t.Fatalf("frames = %q, %q", frames[0], frames[1])
	}
}

func TestFeedZeroLengthFrameDiscardedSilently(t *testing.T) {
	t.Parallel()

	zero := []byte{0x00, 0x00}
	real, _ := framer.Frame([]byte("payload"))

	f := framer.New()
	frames := f.Feed(append(zero, real...))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 (zero-length frame should be dropped)", len(frames))
	}
	if !bytes.Equal(frames[0], []byte("payload")) {
		t.Fatalf("got %q, want %q", frames[0], "payload")
	}
}

func TestPendingReflectsPartialFrame(t *testing.T) {
	t.Parallel()

	wire, _ := framer.Frame([]byte("abcdef"))

	f := framer.New()
	f.Feed(wire[:4])
	if f.Pending() != 4 {
		t.Fatalf("pending = %d, want 4", f.Pending())
	}
}

func TestResetDropsPartialFrame(t *testing.T) {
	t.Parallel()

	wire, _ := framer.Frame([]byte("abcdef"))

	f := framer.New()
	f.Feed(wire[:4])
	f.Reset()
	if f.Pending() != 0 {
		t.Fatalf("pending after Reset = %d, want 0", f.Pending())
	}
}

func TestFrameRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	big := make([]byte, framer.MaxFrameLength+1)
	_, err := framer.Frame(big)
	if !errors.Is(err, framer.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReturnedFramesAreIndependentCopies(t *testing.T) {
	t.Parallel()

	wire, _ := framer.Frame([]byte("abc"))

	f := framer.New()
	frames := f.Feed(wire)
	frames[0][0] = 'X'

	if wire[2] != 'a' {
		t.Fatalf("mutating a returned frame changed the fed bytes: %q", wire)
	}

	frames2 := f.Feed(nil)
	if len(frames2) != 0 {
		t.Fatalf("unexpected extra frames: %v", frames2)
	}
}
