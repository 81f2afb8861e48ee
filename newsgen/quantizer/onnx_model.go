//go:build onnx
// +build onnx

package quantizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/newsgen/newsgen-data/newsgen/transform"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrONNXUnavailable is never returned when built with the onnx tag.
var ErrONNXUnavailable = errors.New("onnx quantizer not available")

var envOnce sync.Once
var envErr error

func initEnvironment(sharedLibrary string) error {
	envOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if sharedLibrary != "" {
			ort.SetSharedLibraryPath(sharedLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("initialize onnx runtime: %w", err)
		}
	})
	return envErr
}

// onnxGraph is one exported graph with a single input and a single output.
type onnxGraph struct {
	session *ort.DynamicAdvancedSession
	input   string
	output  string
}

func (g *onnxGraph) destroy() error {
	if g == nil || g.session == nil {
		return nil
	}
	return g.session.Destroy()
}

// ONNXModel runs an exported VQGAN through ONNX Runtime.
type ONNXModel struct {
	opts    ONNXOptions
	device  string
	mu      sync.Mutex
	encoder *onnxGraph
	decoder *onnxGraph
}

// NewONNXModel opens the encoder graph (and the decoder graph when present) on the
// requested execution provider.
func NewONNXModel(opts ONNXOptions) (*ONNXModel, error) {
	if opts.EncoderPath == "" {
		return nil, fmt.Errorf("onnx encoder path is required")
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = DefaultCodeLength
	}
	if err := initEnvironment(opts.SharedLibrary); err != nil {
		return nil, err
	}

	m := &ONNXModel{opts: opts}
	enc, device, err := openGraph(opts.EncoderPath, opts.device(), opts.DeviceID, ort.TensorElementDataTypeFloat)
	if err != nil {
		return nil, fmt.Errorf("open encoder: %w", err)
	}
	m.encoder = enc
	m.device = device

	if path := opts.decoderPath(); path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			dec, _, err := openGraph(path, device, opts.DeviceID, ort.TensorElementDataTypeInt64)
			if err != nil {
				_ = m.encoder.destroy()
				return nil, fmt.Errorf("open decoder: %w", err)
			}
			m.decoder = dec
		} else if opts.DecoderPath != "" {
			_ = m.encoder.destroy()
			return nil, fmt.Errorf("open decoder %s: %w", path, statErr)
		}
	}
	return m, nil
}

// openGraph reads IO names and creates a session. It returns the provider that
// was actually used.
func openGraph(path, device string, deviceID int, inputType ort.TensorElementDataType) (*onnxGraph, string, error) {
	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, "", fmt.Errorf("get IO info: %w", err)
	}
	var input, output string
	for _, ii := range ins {
		if ii.DataType == inputType {
			input = ii.Name
			break
		}
	}
	if input == "" && len(ins) > 0 {
		input = ins[0].Name
	}
	if len(outs) > 0 {
		output = outs[0].Name
	}
	if input == "" || output == "" {
		return nil, "", fmt.Errorf("could not determine ONNX input/output names of %s", path)
	}

	candidates := []string{device}
	if device == "auto" {
		candidates = []string{"cuda", "cpu"}
	}
	var lastErr error
	for _, ep := range candidates {
		opts, err := sessionOptions(ep, deviceID)
		if err != nil {
			lastErr = err
			continue
		}
		s, err := ort.NewDynamicAdvancedSession(path, []string{input}, []string{output}, opts)
		if opts != nil {
			_ = opts.Destroy()
		}
		if err != nil {
			lastErr = fmt.Errorf("create onnx session on %s: %w", ep, err)
			continue
		}
		return &onnxGraph{session: s, input: input, output: output}, ep, nil
	}
	return nil, "", lastErr
}

func sessionOptions(ep string, deviceID int) (*ort.SessionOptions, error) {
	o, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	_ = o.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)

	switch ep {
	case "cpu":
	case "cuda":
		cu, e := ort.NewCUDAProviderOptions()
		if e == nil {
			_ = cu.Update(map[string]string{"device_id": strconv.Itoa(deviceID)})
			e = o.AppendExecutionProviderCUDA(cu)
			_ = cu.Destroy()
		}
		err = e
	case "tensorrt":
		trt, e := ort.NewTensorRTProviderOptions()
		if e == nil {
			_ = trt.Update(map[string]string{"device_id": strconv.Itoa(deviceID)})
			e = o.AppendExecutionProviderTensorRT(trt)
			_ = trt.Destroy()
		}
		err = e
	case "coreml":
		err = o.AppendExecutionProviderCoreMLV2(map[string]string{})
	case "dml":
		err = o.AppendExecutionProviderDirectML(deviceID)
	default:
		err = fmt.Errorf("unknown execution provider %q", ep)
	}
	if err != nil {
		_ = o.Destroy()
		return nil, fmt.Errorf("execution provider %s unavailable: %w", ep, err)
	}
	return o, nil
}

// Device implements Model.
func (m *ONNXModel) Device() string { return m.device }

// Close implements Model.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(m.encoder.destroy(), m.decoder.destroy())
}

// Encode implements Model.
func (m *ONNXModel) Encode(ctx context.Context, images []transform.Tensor) ([][]int64, error) {
	if len(images) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, h, w := images[0].Shape()
	per := c * h * w
	flat := make([]float32, len(images)*per)
	for i, img := range images {
		copy(flat[i*per:(i+1)*per], img.Data)
	}
	in, err := ort.NewTensor(ort.NewShape(int64(len(images)), int64(c), int64(h), int64(w)), flat)
	if err != nil {
		return nil, fmt.Errorf("image tensor: %w", err)
	}
	defer in.Destroy()

	m.mu.Lock()
	defer m.mu.Unlock()
	outs := []ort.Value{nil}
	if err := m.encoder.session.Run([]ort.Value{in}, outs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer outs[0].Destroy()

	var codes []int64
	switch t := outs[0].(type) {
	case *ort.Tensor[int64]:
		codes = append(codes, t.GetData()...)
	case *ort.Tensor[int32]:
		for _, v := range t.GetData() {
			codes = append(codes, int64(v))
		}
	default:
		return nil, fmt.Errorf("%w: unexpected encoder output type %T", ErrShapeMismatch, outs[0])
	}

	// the encoder may emit [B*L] or [B,L]; reshape to [B,L]
	if len(codes) != len(images)*m.opts.CodeLength {
		return nil, fmt.Errorf("%w: encoder produced %d codes for %d images", ErrShapeMismatch, len(codes), len(images))
	}
	rows := make([][]int64, len(images))
	for i := range rows {
		rows[i] = codes[i*m.opts.CodeLength : (i+1)*m.opts.CodeLength]
	}
	return rows, nil
}

// DecodeCode implements Model.
func (m *ONNXModel) DecodeCode(ctx context.Context, codes [][]int64) ([]transform.Tensor, error) {
	if m.decoder == nil {
		return nil, ErrDecoderUnavailable
	}
	if len(codes) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seq := len(codes[0])
	flat := make([]int64, 0, len(codes)*seq)
	for i, row := range codes {
		if len(row) != seq {
			return nil, fmt.Errorf("%w: row %d has %d codes, want %d", ErrShapeMismatch, i, len(row), seq)
		}
		flat = append(flat, row...)
	}
	in, err := ort.NewTensor(ort.NewShape(int64(len(codes)), int64(seq)), flat)
	if err != nil {
		return nil, fmt.Errorf("code tensor: %w", err)
	}
	defer in.Destroy()

	m.mu.Lock()
	defer m.mu.Unlock()
	outs := []ort.Value{nil}
	if err := m.decoder.session.Run([]ort.Value{in}, outs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer outs[0].Destroy()

	t, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected decoder output type %T", ErrShapeMismatch, outs[0])
	}
	shape := t.GetShape()
	if len(shape) != 4 || int(shape[0]) != len(codes) {
		return nil, fmt.Errorf("%w: unexpected decoder output shape %v", ErrShapeMismatch, shape)
	}
	ch, hh, ww := int(shape[1]), int(shape[2]), int(shape[3])
	per := ch * hh * ww
	data := t.GetData()
	images := make([]transform.Tensor, len(codes))
	for i := range images {
		img := transform.NewTensor(ch, hh, ww)
		copy(img.Data, data[i*per:(i+1)*per])
		images[i] = img
	}
	return images, nil
}
