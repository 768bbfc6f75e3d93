package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/akamensky/argparse"
	"github.com/boxtrain/boxtrain"
	"github.com/boxtrain/boxtrain/dataset"
	"github.com/boxtrain/boxtrain/gridnet"
	"github.com/boxtrain/boxtrain/journal"
	"github.com/boxtrain/boxtrain/postprocess"
	"github.com/boxtrain/boxtrain/preprocess"
	"github.com/boxtrain/boxtrain/render"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("train", "Train an object detector")
	datasetKind := parser.String("d", "dataset", &argparse.Options{Help: "Dataset kind: synthetic, coco or voc", Default: "synthetic"})
	cocoAnnotations := parser.String("", "coco-annotations", &argparse.Options{Help: "COCO annotation json file"})
	cocoImages := parser.String("", "coco-images", &argparse.Options{Help: "COCO image directory"})
	vocRoot := parser.String("", "voc-root", &argparse.Options{Help: "VOC dataset root directory"})
	vocSplit := parser.String("", "voc-split", &argparse.Options{Help: "VOC image set name", Default: "train"})
	classFile := parser.String("c", "classes", &argparse.Options{Help: "Class name file, one label per line (voc only)"})
	samples := parser.Int("n", "samples", &argparse.Options{Help: "Synthetic dataset size", Default: 64})
	batchSize := parser.Int("b", "batch", &argparse.Options{Help: "Batch size", Default: 8})
	epochs := parser.Int("e", "epochs", &argparse.Options{Help: "Epoch count, 0 reads EPOCHS from the environment", Default: 0})
	checkpoint := parser.String("o", "checkpoint", &argparse.Options{Help: "Checkpoint directory, empty reads CHECKPOINT_PATH from the environment"})
	size := parser.Int("s", "size", &argparse.Options{Help: "Model input resolution", Default: 320})
	maxBoxes := parser.Int("m", "maxboxes", &argparse.Options{Help: "Per image box capacity", Default: 64})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Prefetch worker count", Default: 4})
	depth := parser.Int("", "depth", &argparse.Options{Help: "Prefetch look-ahead depth", Default: 8})
	baseLR := parser.Float("", "lr", &argparse.Options{Help: "Base learning rate", Default: 0.01})
	lrStep1 := parser.Int("", "lr-step1", &argparse.Options{Help: "Step the learning rate drops to a tenth", Default: 192000})
	lrStep2 := parser.Int("", "lr-step2", &argparse.Options{Help: "Step the learning rate drops to a hundredth", Default: 256000})
	journalPath := parser.String("j", "journal", &argparse.Options{Help: "Training journal sqlite file"})
	galleryPath := parser.String("g", "gallery", &argparse.Options{Help: "Write an annotated sample gallery PNG after training"})
	seed := parser.Int("", "seed", &argparse.Options{Help: "Augmentation and shuffle seed", Default: 1})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	// prefetch workers hold open image handles, lift the soft limit before
	// the pipeline starts
	check(boxtrain.RaiseFileLimit())

	if *epochs == 0 {
		n, err := boxtrain.EnvEpochs()
		check(err)
		*epochs = n
	}

	if *checkpoint == "" {
		*checkpoint = boxtrain.EnvCheckpointPath()
	}

	src, classes, err := openDataset(*datasetKind, *cocoAnnotations,
		*cocoImages, *vocRoot, *vocSplit, *classFile, *samples, *size,
		int64(*seed))
	check(err)

	defer src.Close()

	logger.Infof("dataset %v with %d classes, batch size %d, %d epochs",
		*datasetKind, classes.Len(), *batchSize, *epochs)

	// train-time transform: flips, then photometric distortion, then the
	// jittered resize onto the model resolution, then densification
	aug := preprocess.NewPipeline(int64(*seed), true,
		preprocess.NewHorizontalFlip(),
		preprocess.NewRandomBrightness(),
		preprocess.NewRandomContrast(),
		preprocess.NewJitteredResize(*size, *size),
	)

	densifier := boxtrain.NewDensifier(*maxBoxes)

	// recycle the concatenated image mats between batches; the short final
	// batch of an epoch bypasses the pool
	densePool := boxtrain.NewDensePool(*workers+*depth+1, *batchSize,
		*size, *size, 3)
	densifier.Pool = densePool

	defer densePool.Close()

	transform := func(batch *boxtrain.Batch) (*boxtrain.DenseBatch, error) {
		defer batch.Close()

		augmented, err := aug.Apply(batch)

		if err != nil {
			return nil, err
		}

		defer augmented.Close()

		return densifier.Densify(augmented)
	}

	batcher, err := boxtrain.NewBatcher(src, *batchSize)
	check(err)

	provider, err := boxtrain.NewPrefetcher(batcher, transform, *workers, *depth)
	check(err)

	defer provider.Close()

	model, err := gridnet.New(gridnet.Config{
		Width:    *size,
		Height:   *size,
		GridSize: 8,
		Classes:  classes.Len(),
		Seed:     int64(*seed),
	})
	check(err)

	check(model.Compile(boxtrain.CompileConfig{
		Optimizer:      "sgd",
		Momentum:       0.9,
		ClipGlobalNorm: 10,
	}))

	schedule := boxtrain.NewDetectionSchedule(*baseLR,
		int64(*lrStep1), int64(*lrStep2))

	trainer := boxtrain.NewTrainer(logger, model, schedule)
	trainer.CheckpointPath = *checkpoint

	if *journalPath != "" {

		jnl, err := journal.Open(*journalPath)
		check(err)

		defer jnl.Close()

		run, err := jnl.StartRun(*epochs, *checkpoint)
		check(err)

		trainer.Hooks = append(trainer.Hooks, jnl.Hook(run))
		logger.Infof("journaling run %v to %v", run.ID, *journalPath)
	}

	// stop cleanly between batches on ctrl-c
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	history, err := trainer.Fit(ctx, provider, nil, *epochs)
	check(err)

	if final, ok := history.Final(); ok {
		logger.Infof("training done: %d epochs, %d steps, final loss %.6f, checkpoint in %v",
			final.Epoch, final.GlobalStep, final.TrainLoss, *checkpoint)
	}

	if *galleryPath != "" {
		// the prefetcher holds the source, stop it before rereading
		check(provider.Close())
		check(writeGallery(logger, *galleryPath, src, model, classes, *size))
	}
}

// openDataset builds the sample source and class mapping for the selected
// dataset kind.  Every kind is wrapped in a shuffler so each epoch sees a
// fresh sample order.
func openDataset(kind, cocoAnnotations, cocoImages, vocRoot, vocSplit,
	classFile string, samples, size int, seed int64) (boxtrain.SampleSource, *boxtrain.ClassMapping, error) {

	switch kind {
	case "synthetic":
		src, err := dataset.NewSynthetic(samples, size, size, 3, 6, seed)

		if err != nil {
			return nil, nil, err
		}

		return dataset.NewShuffler(src, seed), src.Classes(), nil

	case "coco":
		src, err := dataset.OpenCOCO(cocoAnnotations, cocoImages)

		if err != nil {
			return nil, nil, err
		}

		return dataset.NewShuffler(src, seed), src.Classes(), nil

	case "voc":
		classes, err := boxtrain.LoadClassFile(classFile)

		if err != nil {
			return nil, nil, err
		}

		src, err := dataset.OpenVOC(vocRoot, vocSplit, classes)

		if err != nil {
			return nil, nil, err
		}

		return dataset.NewShuffler(src, seed), classes, nil
	}

	return nil, nil, fmt.Errorf("unknown dataset kind %q: %w", kind, boxtrain.ErrConfig)
}

// writeGallery runs the trained model over a handful of samples and writes
// an annotated contact sheet for eyeballing the run
func writeGallery(logger logs.Log, path string, src boxtrain.SampleSource,
	model boxtrain.Model, classes *boxtrain.ClassMapping, size int) error {

	if err := src.Reset(); err != nil {
		return err
	}

	lbox := preprocess.NewLetterbox(size, size)
	densifier := boxtrain.NewDensifier(64)
	predictor := boxtrain.NewPredictor(logger, model, postprocess.NewNMSDecoder())

	const galleryTiles = 8

	var tiles []render.GalleryTile

	defer func() {
		for _, t := range tiles {
			_ = t.Sample.Close()
		}
	}()

	for len(tiles) < galleryTiles {

		s, err := src.Next()

		if err == io.EOF {
			break
		}

		if err != nil {
			return err
		}

		normalized, err := lbox.Apply(s)
		_ = s.Close()

		if err != nil {
			return err
		}

		dense, err := densifier.Densify(&boxtrain.Batch{
			Samples: []*boxtrain.Sample{normalized},
		})

		if err != nil {
			_ = normalized.Close()
			return err
		}

		dets, err := predictor.Predict(dense)
		_ = dense.Close()

		if err != nil {
			_ = normalized.Close()
			return err
		}

		tiles = append(tiles, render.GalleryTile{
			Sample:     normalized,
			Detections: dets[0],
			Caption: fmt.Sprintf("sample %d: %d truth, %d detected",
				len(tiles), len(normalized.Boxes), len(dets[0])),
		})
	}

	if len(tiles) == 0 {
		return nil
	}

	if err := render.SaveGallery(path, tiles, classes,
		render.DefaultGalleryOptions()); err != nil {
		return err
	}

	logger.Infof("wrote gallery of %d samples to %v", len(tiles), path)

	return nil
}
