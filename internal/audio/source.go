package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Source produces fixed-size chunks of normalized mono audio at a single
// sample rate. NextChunk blocks until a full chunk is available and returns
// io.EOF when the stream ends.
type Source interface {
	Start(ctx context.Context) error
	NextChunk() ([]float32, error)
	Close() error
}

// MicSource captures microphone audio through an ffmpeg subprocess emitting
// raw little-endian 16-bit PCM on stdout. Using ffmpeg keeps capture portable
// across platform audio stacks without native bindings.
type MicSource struct {
	binary      string
	inputFormat string
	device      string
	sampleRate  int
	chunkSize   int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	buf    []byte
}

// NewMicSource creates a microphone source. chunkSize is in samples.
func NewMicSource(binary, inputFormat, device string, sampleRate, chunkSize int) *MicSource {
	return &MicSource{
		binary:      binary,
		inputFormat: inputFormat,
		device:      device,
		sampleRate:  sampleRate,
		chunkSize:   chunkSize,
		buf:         make([]byte, chunkSize*2),
	}
}

// Start launches the ffmpeg capture process.
func (m *MicSource) Start(ctx context.Context) error {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", m.inputFormat,
		"-i", m.device,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", m.sampleRate),
		"-f", "s16le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, m.binary, args...)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg capture: %w", err)
	}
	m.cmd = cmd
	m.stdout = stdout
	m.reader = bufio.NewReaderSize(stdout, m.chunkSize*8)
	return nil
}

// NextChunk reads one full chunk from the capture process.
func (m *MicSource) NextChunk() ([]float32, error) {
	if m.reader == nil {
		return nil, fmt.Errorf("microphone source not started")
	}
	if _, err := io.ReadFull(m.reader, m.buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read capture stream: %w", err)
	}
	return Int16ToFloat32(m.buf), nil
}

// Close terminates the capture process.
func (m *MicSource) Close() error {
	if m.stdout != nil {
		m.stdout.Close()
	}
	if m.cmd != nil && m.cmd.Process != nil {
		m.cmd.Process.Kill()
		m.cmd.Wait()
	}
	return nil
}

// FileSource replays a WAV file as a chunk stream. Input is downmixed to mono
// and resampled to the target rate; the final partial chunk is zero-padded.
// With a positive pace, chunks are released at that interval so downstream
// timing behavior matches a microphone session.
type FileSource struct {
	path       string
	sampleRate int
	chunkSize  int
	pace       time.Duration

	samples []float32
	pos     int
	next    time.Time
}

// NewFileSource creates a file replay source. chunkSize is in samples; a zero
// pace replays as fast as the consumer reads.
func NewFileSource(path string, sampleRate, chunkSize int, pace time.Duration) *FileSource {
	return &FileSource{
		path:       path,
		sampleRate: sampleRate,
		chunkSize:  chunkSize,
		pace:       pace,
	}
}

// Start reads and decodes the whole file up front.
func (f *FileSource) Start(ctx context.Context) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}
	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", f.path, err)
	}
	f.samples = Resample(samples, rate, f.sampleRate)
	f.pos = 0
	f.next = time.Now()
	return nil
}

// NextChunk returns the next chunk, zero-padding the last one.
func (f *FileSource) NextChunk() ([]float32, error) {
	if f.pos >= len(f.samples) {
		return nil, io.EOF
	}
	if f.pace > 0 {
		if d := time.Until(f.next); d > 0 {
			time.Sleep(d)
		}
		f.next = f.next.Add(f.pace)
	}

	chunk := make([]float32, f.chunkSize)
	n := copy(chunk, f.samples[f.pos:])
	f.pos += n
	return chunk, nil
}

// Close releases the decoded samples.
func (f *FileSource) Close() error {
	f.samples = nil
	return nil
}
