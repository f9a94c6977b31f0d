package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LSTM runs inference for a stack of Keras LSTM layers followed by dense
// layers, from weights exported to JSON. Kernels use Keras layout: the gate
// blocks are ordered input, forget, cell, output.
type LSTM struct {
	window int
	layers []lstmLayer
	dense  []denseLayer
}

type lstmLayer struct {
	units     int
	kernel    [][]float64 // input_dim x 4*units
	recurrent [][]float64 // units x 4*units
	bias      []float64   // 4*units
}

type denseLayer struct {
	kernel     [][]float64 // input_dim x output_dim
	bias       []float64
	activation func(float64) float64
}

type lstmFile struct {
	Window int `json:"window"`
	LSTM   []struct {
		Units           int         `json:"units"`
		Kernel          [][]float64 `json:"kernel"`
		RecurrentKernel [][]float64 `json:"recurrent_kernel"`
		Bias            []float64   `json:"bias"`
	} `json:"lstm"`
	Dense []struct {
		Kernel     [][]float64 `json:"kernel"`
		Bias       []float64   `json:"bias"`
		Activation string      `json:"activation"`
	} `json:"dense"`
}

// LoadLSTM reads exported LSTM weights from a JSON file.
func LoadLSTM(path string) (*LSTM, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadModel, err)
	}
	m, err := ParseLSTM(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseLSTM decodes exported LSTM weights and checks every shape.
func ParseLSTM(raw []byte) (*LSTM, error) {
	var f lstmFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadModel, err)
	}
	if len(f.LSTM) == 0 {
		return nil, fmt.Errorf("%w: no lstm layers", ErrInvalidModel)
	}

	m := &LSTM{window: f.Window}
	inputDim := -1
	for i, l := range f.LSTM {
		if l.Units <= 0 {
			return nil, fmt.Errorf("%w: lstm layer %d has no units", ErrInvalidModel, i)
		}
		gates := 4 * l.Units
		if inputDim >= 0 && len(l.Kernel) != inputDim {
			return nil, fmt.Errorf("%w: lstm layer %d expects %d inputs, previous layer yields %d", ErrInvalidModel, i, len(l.Kernel), inputDim)
		}
		if err := checkMatrix(l.Kernel, -1, gates); err != nil {
			return nil, fmt.Errorf("lstm layer %d kernel: %w", i, err)
		}
		if err := checkMatrix(l.RecurrentKernel, l.Units, gates); err != nil {
			return nil, fmt.Errorf("lstm layer %d recurrent kernel: %w", i, err)
		}
		if len(l.Bias) != gates {
			return nil, fmt.Errorf("%w: lstm layer %d bias has %d values, want %d", ErrInvalidModel, i, len(l.Bias), gates)
		}
		m.layers = append(m.layers, lstmLayer{
			units:     l.Units,
			kernel:    l.Kernel,
			recurrent: l.RecurrentKernel,
			bias:      l.Bias,
		})
		inputDim = l.Units
	}

	for i, d := range f.Dense {
		act, ok := activations[d.Activation]
		if !ok {
			return nil, fmt.Errorf("%w: dense layer %d activation %q", ErrInvalidModel, i, d.Activation)
		}
		if len(d.Kernel) != inputDim {
			return nil, fmt.Errorf("%w: dense layer %d expects %d inputs, previous layer yields %d", ErrInvalidModel, i, len(d.Kernel), inputDim)
		}
		if err := checkMatrix(d.Kernel, inputDim, len(d.Bias)); err != nil {
			return nil, fmt.Errorf("dense layer %d kernel: %w", i, err)
		}
		m.dense = append(m.dense, denseLayer{kernel: d.Kernel, bias: d.Bias, activation: act})
		inputDim = len(d.Bias)
	}
	return m, nil
}

var activations = map[string]func(float64) float64{
	"":        identity,
	"linear":  identity,
	"relu":    func(v float64) float64 { return math.Max(0, v) },
	"sigmoid": sigmoid,
	"tanh":    math.Tanh,
}

func identity(v float64) float64 { return v }

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

// checkMatrix verifies a rows x cols shape; rows < 0 accepts any row count.
func checkMatrix(m [][]float64, rows, cols int) error {
	if rows >= 0 && len(m) != rows {
		return fmt.Errorf("%w: %d rows, want %d", ErrInvalidModel, len(m), rows)
	}
	if len(m) == 0 {
		return fmt.Errorf("%w: empty matrix", ErrInvalidModel)
	}
	for i, r := range m {
		if len(r) != cols {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidModel, i, len(r), cols)
		}
	}
	return nil
}

// Window returns the sequence length the model was trained with, or 0 when
// the export did not record it.
func (m *LSTM) Window() int { return m.window }

// InputDim returns the per-step feature count.
func (m *LSTM) InputDim() int { return len(m.layers[0].kernel) }

// OutputDim returns the length of the prediction vector.
func (m *LSTM) OutputDim() int {
	if n := len(m.dense); n > 0 {
		return len(m.dense[n-1].bias)
	}
	return m.layers[len(m.layers)-1].units
}

// Predict runs the window through every LSTM layer and feeds the last hidden
// state into the dense head.
func (m *LSTM) Predict(window [][]float64) ([]float64, error) {
	if len(window) == 0 {
		return nil, fmt.Errorf("%w: empty window", ErrShape)
	}
	seq := window
	for _, l := range m.layers {
		for t, step := range seq {
			if len(step) != len(l.kernel) {
				return nil, fmt.Errorf("%w: step %d has %d features, want %d", ErrShape, t, len(step), len(l.kernel))
			}
		}
		seq = l.run(seq)
	}
	out := seq[len(seq)-1]
	for _, d := range m.dense {
		out = d.forward(out)
	}
	return out, nil
}

// run returns the hidden state after every step.
func (l lstmLayer) run(seq [][]float64) [][]float64 {
	u := l.units
	h := make([]float64, u)
	c := make([]float64, u)
	z := make([]float64, 4*u)
	outputs := make([][]float64, len(seq))

	for t, x := range seq {
		copy(z, l.bias)
		for i, xv := range x {
			row := l.kernel[i]
			for j := range z {
				z[j] += xv * row[j]
			}
		}
		for i, hv := range h {
			row := l.recurrent[i]
			for j := range z {
				z[j] += hv * row[j]
			}
		}
		for j := 0; j < u; j++ {
			in := sigmoid(z[j])
			forget := sigmoid(z[u+j])
			cell := math.Tanh(z[2*u+j])
			out := sigmoid(z[3*u+j])
			c[j] = forget*c[j] + in*cell
			h[j] = out * math.Tanh(c[j])
		}
		outputs[t] = append([]float64(nil), h...)
	}
	return outputs
}

func (d denseLayer) forward(x []float64) []float64 {
	out := append([]float64(nil), d.bias...)
	for i, xv := range x {
		row := d.kernel[i]
		for j := range out {
			out[j] += xv * row[j]
		}
	}
	for j := range out {
		out[j] = d.activation(out[j])
	}
	return out
}
