package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/boxtrain/boxtrain"
	"github.com/boxtrain/boxtrain/gridnet"
	"github.com/boxtrain/boxtrain/postprocess"
	"github.com/boxtrain/boxtrain/preprocess"
	"github.com/boxtrain/boxtrain/render"
	"github.com/cyclopcam/logs"
	"gocv.io/x/gocv"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("predict", "Detect objects in an image with a trained checkpoint")
	input := parser.String("i", "input", &argparse.Options{Help: "Input image file", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Annotated output image file", Default: "out.jpg"})
	checkpoint := parser.String("k", "checkpoint", &argparse.Options{Help: "Checkpoint directory, empty reads INFERENCE_CHECKPOINT_PATH from the environment"})
	classFile := parser.String("c", "classes", &argparse.Options{Help: "Class name file, one label per line"})
	confidence := parser.Float("", "confidence", &argparse.Options{Help: "Minimum detection confidence", Default: 0.25})
	iou := parser.Float("", "iou", &argparse.Options{Help: "Suppression IoU threshold", Default: 0.45})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	if *checkpoint == "" {
		*checkpoint = boxtrain.EnvInferenceCheckpointPath()
	}

	model, err := gridnet.Open(*checkpoint)
	check(err)

	logger.Infof("loaded checkpoint from %v", *checkpoint)

	classes, err := loadClasses(*classFile, model.Config().Classes)
	check(err)

	// both suppression thresholds are decode-time settings, no retraining
	// needed to change them
	decoder := postprocess.NewNMSDecoder()
	decoder.ConfThreshold = float32(*confidence)
	decoder.NMSThreshold = float32(*iou)

	predictor := boxtrain.NewPredictor(logger, model, decoder)

	img := gocv.IMRead(*input, gocv.IMReadColor)

	if img.Empty() {
		logger.Errorf("error reading image from %v", *input)
		os.Exit(1)
	}

	sample, err := boxtrain.NewSample(img, nil, nil)
	check(err)

	defer sample.Close()

	srcWidth := sample.Width()
	srcHeight := sample.Height()

	// normalize onto the resolution the checkpoint was trained with
	width, height := model.InputSize()
	lbox := preprocess.NewLetterbox(width, height)

	normalized, err := lbox.Apply(sample)
	check(err)

	dense, err := boxtrain.NewDensifier(1).Densify(&boxtrain.Batch{
		Samples: []*boxtrain.Sample{normalized},
	})
	_ = normalized.Close()
	check(err)

	detections, err := predictor.Predict(dense)
	_ = dense.Close()
	check(err)

	// map detections back into source image coordinates
	dets := postprocess.UnmapDetections(detections[0],
		lbox.Params(srcWidth, srcHeight), srcWidth, srcHeight)

	for _, det := range dets {
		fmt.Printf("%s @ (%.0f %.0f %.0f %.0f) %.3f\n",
			classes.Name(det.ClassID), det.Box.X, det.Box.Y,
			det.Box.X2(), det.Box.Y2(), det.Confidence)
	}

	render.DetectionBoxes(&sample.Image, dets, classes, render.DefaultFont(), 2)

	if ok := gocv.IMWrite(*output, sample.Image); !ok {
		logger.Errorf("failed to save the image to %v", *output)
		os.Exit(1)
	}

	logger.Infof("%d objects detected, annotated image written to %v",
		len(dets), *output)
}

// loadClasses reads the class name file, or falls back to numbered names
// matching the checkpoint's class count
func loadClasses(file string, count int) (*boxtrain.ClassMapping, error) {

	if file != "" {
		return boxtrain.LoadClassFile(file)
	}

	names := make([]string, count)

	for i := range names {
		names[i] = fmt.Sprintf("object%d", i)
	}

	return boxtrain.NewClassMapping(names)
}
