package pipeline

import (
	"github.com/banshee-data/benchscope/internal/classify"
	"github.com/banshee-data/benchscope/internal/frame"
	"github.com/banshee-data/benchscope/internal/waveform"
)

// Decoder turns one telemetry line into a value for the presenter. Errors for
// which frame.IsNoSample reports true mean "nothing this cycle"; any other
// error is a rejected reading.
type Decoder[T any] interface {
	Decode(line string) (T, error)
}

// DecoderFunc adapts a plain function to Decoder.
type DecoderFunc[T any] func(line string) (T, error)

// Decode calls f.
func (f DecoderFunc[T]) Decode(line string) (T, error) { return f(line) }

// WaveformDecoder parses waveform frames and reconstructs the two channels.
type WaveformDecoder struct {
	reconstructor *waveform.Reconstructor
}

// NewWaveformDecoder returns a decoder drawing on window w.
func NewWaveformDecoder(w waveform.Window) (*WaveformDecoder, error) {
	r, err := waveform.NewReconstructor(w)
	if err != nil {
		return nil, err
	}
	return &WaveformDecoder{reconstructor: r}, nil
}

// Decode implements Decoder.
func (d *WaveformDecoder) Decode(line string) (waveform.Pair, error) {
	s, err := frame.ParseSample(line)
	if err != nil {
		return waveform.Pair{}, err
	}
	return d.reconstructor.Update(s)
}

// Classification is a capacitance report together with the code chosen for it.
type Classification struct {
	Reading frame.CapacitanceReading
	Result  classify.Result
}

// CapacitanceDecoder parses capacitance reports and classifies them.
type CapacitanceDecoder struct {
	classifier *classify.Classifier
}

// NewCapacitanceDecoder returns a decoder using c.
func NewCapacitanceDecoder(c *classify.Classifier) *CapacitanceDecoder {
	return &CapacitanceDecoder{classifier: c}
}

// Decode implements Decoder.
func (d *CapacitanceDecoder) Decode(line string) (Classification, error) {
	reading, err := frame.ParseCapacitance(line)
	if err != nil {
		return Classification{}, err
	}
	res, err := d.classifier.Classify(reading.Capacitance)
	if err != nil {
		return Classification{}, err
	}
	return Classification{Reading: reading, Result: res}, nil
}
