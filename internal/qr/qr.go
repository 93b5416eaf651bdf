// Package qr adapts a QR decoding engine to single-frame decoding.
package qr

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNotFound means the frame held no decodable code. It is expected on most frames.
var ErrNotFound = errors.New("qr: no code in frame")

// Decoder extracts the text payload of a code in img.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// ZXingDecoder decodes QR codes with gozxing. It is safe for concurrent use.
type ZXingDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewZXingDecoder returns a decoder that trades speed for accuracy on hard frames.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode returns ErrNotFound for frames without a readable code, including codes that were
// located but failed checksum or format checks on this frame.
func (d *ZXingDecoder) Decode(img image.Image) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", ErrNotFound
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("qr: binarize frame: %w", err)
	}

	// readers keep per-call state
	result, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		if isMiss(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("qr: decode: %w", err)
	}

	return result.GetText(), nil
}

func isMiss(err error) bool {
	var notFound gozxing.NotFoundException
	var checksum gozxing.ChecksumException
	var format gozxing.FormatException
	return errors.As(err, &notFound) || errors.As(err, &checksum) || errors.As(err, &format)
}

// MockDecoder replays scripted results, one per Decode call. When the script runs out it
// returns ErrNotFound.
type MockDecoder struct {
	mu      sync.Mutex
	results []MockResult
	calls   int
}

// MockResult is one scripted decode outcome.
type MockResult struct {
	Text string
	Err  error
}

// NewMockDecoder creates a decoder that returns results in order.
func NewMockDecoder(results ...MockResult) *MockDecoder {
	return &MockDecoder{results: results}
}

// Push appends results to the script.
func (m *MockDecoder) Push(results ...MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, results...)
}

// Calls returns the number of Decode calls so far.
func (m *MockDecoder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDecoder) Decode(_ image.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.results) == 0 {
		return "", ErrNotFound
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r.Text, r.Err
}
