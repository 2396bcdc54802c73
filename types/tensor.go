package types

import (
	"image"
	"image/color"
)

// Tensor is the dense float32 array exchanged with inference backends.
// Video tensors use shape [1, H, W, 3] with values normalized to [0, 1];
// audio tensors use shape [N] holding mono samples in [-1, 1].
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor allocates a zero-valued tensor with the given shape.
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{
		Data:  make([]float32, n),
		Shape: append([]int(nil), shape...),
	}
}

// ZeroVideoTensor returns an all-black video tensor of the given size.
// Used as the local substitute when a backend result cannot be decoded.
func ZeroVideoTensor(width, height int) *Tensor {
	return NewTensor(1, height, width, 3)
}

// SilenceTensor returns an all-silent audio tensor of n samples.
func SilenceTensor(n int) *Tensor {
	return NewTensor(n)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Dims returns (width, height) for a video tensor, or (0, 0) when the
// shape is not a [1, H, W, 3] video layout.
func (t *Tensor) Dims() (width, height int) {
	if len(t.Shape) != 4 || t.Shape[3] != 3 {
		return 0, 0
	}
	return t.Shape[2], t.Shape[1]
}

// Clamp limits every element to the [lo, hi] range in place and returns
// the tensor for chaining.
func (t *Tensor) Clamp(lo, hi float32) *Tensor {
	for i, v := range t.Data {
		if v < lo {
			t.Data[i] = lo
		} else if v > hi {
			t.Data[i] = hi
		}
	}
	return t
}

// TensorFromImage converts a decoded image into a [1, H, W, 3] tensor
// normalized to [0, 1].
func TensorFromImage(img image.Image) *Tensor {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	t := NewTensor(1, h, w, 3)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			t.Data[i] = float32(r>>8) / 255.0
			t.Data[i+1] = float32(g>>8) / 255.0
			t.Data[i+2] = float32(b>>8) / 255.0
			i += 3
		}
	}
	return t
}

// ToImage denormalizes a [1, H, W, 3] video tensor into an 8-bit RGBA
// image, clamping to [0, 1] first.
func (t *Tensor) ToImage() *image.RGBA {
	w, h := t.Dims()
	if w == 0 || h == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	t.Clamp(0, 1)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(t.Data[i]*255 + 0.5),
				G: uint8(t.Data[i+1]*255 + 0.5),
				B: uint8(t.Data[i+2]*255 + 0.5),
				A: 255,
			})
			i += 3
		}
	}
	return img
}
