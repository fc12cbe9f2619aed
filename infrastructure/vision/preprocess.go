package vision

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// PreprocessParams tune the OCR quality transform. The defaults were
// chosen against low-contrast document photos.
type PreprocessParams struct {
	UnsharpSigma    float64
	UnsharpAmount   float64
	DarkenThreshold float64
	DarkenFactor    float64
	UpscaleFactor   float64
}

func DefaultPreprocessParams() PreprocessParams {
	return PreprocessParams{
		UnsharpSigma:    3,
		UnsharpAmount:   0.6,
		DarkenThreshold: 90,
		DarkenFactor:    0.55,
		UpscaleFactor:   2,
	}
}

// PreprocessForOCR sharpens and renormalises a document image before
// text recognition. The work happens on the luminance channel only so
// chroma noise is not amplified: unsharp mask twice, darken everything
// below the luminance threshold, recombine and upscale.
// Deterministic for fixed params.
func PreprocessForOCR(src gocv.Mat, params PreprocessParams) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), errors.New("empty input image")
	}

	ycrcb := gocv.NewMat()
	defer ycrcb.Close()
	gocv.CvtColor(src, &ycrcb, gocv.ColorBGRToYCrCb)

	channels := gocv.Split(ycrcb)
	defer func() {
		for _, channel := range channels {
			channel.Close()
		}
	}()

	luma := channels[0]
	sharpened := unsharpMask(luma, params)
	defer sharpened.Close()
	resharpened := unsharpMask(sharpened, params)
	defer resharpened.Close()

	darkened := darkenBelowThreshold(resharpened, params.DarkenThreshold, params.DarkenFactor)
	defer darkened.Close()

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge([]gocv.Mat{darkened, channels[1], channels[2]}, &merged)

	recombined := gocv.NewMat()
	defer recombined.Close()
	gocv.CvtColor(merged, &recombined, gocv.ColorYCrCbToBGR)

	upscaled := gocv.NewMat()
	gocv.Resize(recombined, &upscaled, image.Point{}, params.UpscaleFactor, params.UpscaleFactor, gocv.InterpolationCubic)
	return upscaled, nil
}

func unsharpMask(channel gocv.Mat, params PreprocessParams) gocv.Mat {
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(channel, &blurred, image.Point{}, params.UnsharpSigma, params.UnsharpSigma, gocv.BorderDefault)

	sharpened := gocv.NewMat()
	gocv.AddWeighted(channel, 1+params.UnsharpAmount, blurred, -params.UnsharpAmount, 0, &sharpened)
	return sharpened
}

// darkenBelowThreshold multiplies pixels darker than the threshold by
// the factor, deepening print against washed out backgrounds.
func darkenBelowThreshold(channel gocv.Mat, threshold float64, factor float64) gocv.Mat {
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(channel, &mask, float32(threshold), 255, gocv.ThresholdBinaryInv)

	scaled := channel.Clone()
	defer scaled.Close()
	scaled.MultiplyFloat(float32(factor))

	result := channel.Clone()
	scaled.CopyToWithMask(&result, mask)
	return result
}

// SharpenCrop applies a 3x3 sharpening kernel, used on small numeric
// marker crops before digit recognition.
func SharpenCrop(src gocv.Mat) gocv.Mat {
	kernel := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	defer kernel.Close()
	values := [][]float32{
		{0, -1, 0},
		{-1, 5, -1},
		{0, -1, 0},
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			kernel.SetFloatAt(row, col, values[row][col])
		}
	}

	sharpened := gocv.NewMat()
	gocv.Filter2D(src, &sharpened, -1, kernel, image.Point{X: -1, Y: -1}, 0, gocv.BorderDefault)
	return sharpened
}
