package boxtrain

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cyclopcam/logs"
)

// Phase names the training driver's position in its run state machine
type Phase int

const (
	PhaseIdle         Phase = 0
	PhaseRunning      Phase = 1
	PhaseCheckpointed Phase = 2
	PhaseDone         Phase = 3
)

// String returns the readable name of the phase
func (p Phase) String() string {

	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseCheckpointed:
		return "checkpointed"
	case PhaseDone:
		return "done"
	}

	return "unknown"
}

// EpochState is the snapshot handed to epoch hooks when an epoch finishes
type EpochState struct {
	// Epoch is the epoch that just finished, counting from 1
	Epoch int
	// Epochs is the configured epoch total for the run
	Epochs int
	// GlobalStep is the number of optimization steps taken so far
	GlobalStep int64
	// TrainLoss is the mean training loss over the epoch
	TrainLoss float64
	// EvalLoss is the mean evaluation loss over the epoch, zero when the
	// run has no evaluation data
	EvalLoss float64
	// EvalBatches is the number of evaluation batches seen, zero when the
	// run has no evaluation data
	EvalBatches int
	// LearningRate is the rate in effect at the last step of the epoch
	LearningRate float64
	// Checkpointed reports whether this epoch wrote a checkpoint
	Checkpointed bool
	// Duration is the wall time the epoch took
	Duration time.Duration
	// Model gives hooks access to the model under training
	Model Model
}

// EpochHook is the observer capability invoked after every epoch.
// Checkpointing, logging and journaling are all hooks; a hook error aborts
// the run.
type EpochHook interface {
	OnEpochEnd(state EpochState) error
}

// EpochHookFunc adapts a plain function to the EpochHook interface
type EpochHookFunc func(EpochState) error

// OnEpochEnd implements EpochHook
func (f EpochHookFunc) OnEpochEnd(state EpochState) error {
	return f(state)
}

// History records the per-epoch states of a completed run
type History struct {
	Epochs []EpochState
}

// Final returns the state of the last completed epoch
func (h *History) Final() (EpochState, bool) {

	if len(h.Epochs) == 0 {
		return EpochState{}, false
	}

	return h.Epochs[len(h.Epochs)-1], true
}

// Trainer drives the epoch loop over dense-batch providers: every training
// batch goes through the model's optimization step exactly once per epoch
// in provider order, evaluation batches are run for monitoring only, and
// weights are checkpointed at the configured interval.  Shuffling between
// epochs is the sample source's business, not the trainer's.
type Trainer struct {
	// Log receives run progress
	Log logs.Log
	// Model is the detector under training
	Model Model
	// Schedule maps the global step count to a learning rate
	Schedule *StepSchedule
	// CheckpointPath is the directory weights are serialized under
	CheckpointPath string
	// CheckpointEvery writes a checkpoint each time this many epochs
	// complete.  The final epoch always checkpoints.  Zero or negative
	// means final-epoch only.
	CheckpointEvery int
	// Hooks run in order after each epoch, following the built-in
	// checkpoint write
	Hooks []EpochHook

	phase      Phase
	globalStep int64
}

// NewTrainer returns a trainer with checkpointing every epoch into the
// environment-configured checkpoint directory
func NewTrainer(log logs.Log, model Model, schedule *StepSchedule) *Trainer {
	return &Trainer{
		Log:             log,
		Model:           model,
		Schedule:        schedule,
		CheckpointPath:  EnvCheckpointPath(),
		CheckpointEvery: 1,
		phase:           PhaseIdle,
	}
}

// Phase returns the driver's current position in its state machine
func (t *Trainer) Phase() Phase {
	return t.phase
}

// GlobalStep returns the number of optimization steps taken so far.  The
// counter does not survive a restart: loading a checkpoint resumes weight
// values only.
func (t *Trainer) GlobalStep() int64 {
	return t.globalStep
}

// Fit runs the training loop for the given number of epochs.  eval may be
// nil for a run without evaluation.  Cancellation via ctx is honored
// between batches; each optimization step is atomic from the driver's
// perspective.  The returned history covers the epochs that completed,
// also on error.
func (t *Trainer) Fit(ctx context.Context, train, eval BatchProvider, epochs int) (*History, error) {

	if t.Model == nil || t.Schedule == nil {
		return nil, fmt.Errorf("trainer needs a model and a schedule: %w", ErrConfig)
	}

	if epochs < 1 {
		return nil, fmt.Errorf("epoch count %d, want >= 1: %w", epochs, ErrConfig)
	}

	history := &History{}

	for epoch := 1; epoch <= epochs; epoch++ {

		t.phase = PhaseRunning
		start := time.Now()

		trainLoss, steps, err := t.trainEpoch(ctx, train)

		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		evalLoss, evalBatches, err := t.evalEpoch(ctx, eval)

		if err != nil {
			return history, fmt.Errorf("epoch %d eval: %w", epoch, err)
		}

		state := EpochState{
			Epoch:        epoch,
			Epochs:       epochs,
			GlobalStep:   t.globalStep,
			TrainLoss:    trainLoss,
			EvalLoss:     evalLoss,
			EvalBatches:  evalBatches,
			LearningRate: t.Schedule.LearningRate(t.globalStep - 1),
			Duration:     time.Since(start),
			Model:        t.Model,
		}

		if t.shouldCheckpoint(epoch, epochs) {

			if err := t.Model.SaveWeights(t.CheckpointPath); err != nil {
				return history, fmt.Errorf("checkpoint after epoch %d: %w", epoch, err)
			}

			t.phase = PhaseCheckpointed
			state.Checkpointed = true
		}

		for _, hook := range t.Hooks {
			if err := hook.OnEpochEnd(state); err != nil {
				return history, fmt.Errorf("epoch %d hook: %w", epoch, err)
			}
		}

		if evalBatches > 0 {
			t.Log.Infof("epoch %d/%d: train loss %.6f, eval loss %.6f, lr %.2g, %d steps, %.1fs",
				epoch, epochs, trainLoss, evalLoss, state.LearningRate,
				steps, state.Duration.Seconds())
		} else {
			t.Log.Infof("epoch %d/%d: train loss %.6f, lr %.2g, %d steps, %.1fs",
				epoch, epochs, trainLoss, state.LearningRate,
				steps, state.Duration.Seconds())
		}

		history.Epochs = append(history.Epochs, state)

		if epoch < epochs {

			if err := train.Reset(); err != nil {
				return history, fmt.Errorf("resetting training data after epoch %d: %w", epoch, err)
			}

			if eval != nil {
				if err := eval.Reset(); err != nil {
					return history, fmt.Errorf("resetting eval data after epoch %d: %w", epoch, err)
				}
			}
		}
	}

	t.phase = PhaseDone

	return history, nil
}

// shouldCheckpoint reports whether a checkpoint is due after this epoch
func (t *Trainer) shouldCheckpoint(epoch, epochs int) bool {

	if epoch == epochs {
		return true
	}

	return t.CheckpointEvery > 0 && epoch%t.CheckpointEvery == 0
}

// trainEpoch consumes every training batch exactly once in provider order
// and returns the mean loss and step count
func (t *Trainer) trainEpoch(ctx context.Context, train BatchProvider) (float64, int, error) {

	var lossSum float64
	steps := 0

	for {
		select {
		case <-ctx.Done():
			return 0, steps, ctx.Err()
		default:
		}

		batch, err := train.Next()

		if err == io.EOF {
			break
		}

		if err != nil {
			return 0, steps, err
		}

		lr := t.Schedule.LearningRate(t.globalStep)
		loss, err := t.Model.TrainStep(batch, float32(lr))
		_ = batch.Close()

		if err != nil {
			// fail fast, a shape or step failure cannot be retried
			return 0, steps, fmt.Errorf("train step %d: %w", t.globalStep, err)
		}

		lossSum += float64(loss)
		t.globalStep++
		steps++
	}

	if steps == 0 {
		return 0, 0, fmt.Errorf("training provider yielded no batches: %w", ErrSchema)
	}

	return lossSum / float64(steps), steps, nil
}

// evalEpoch runs the evaluation batches for monitoring without updating
// any parameters
func (t *Trainer) evalEpoch(ctx context.Context, eval BatchProvider) (float64, int, error) {

	if eval == nil {
		return 0, 0, nil
	}

	var lossSum float64
	batches := 0

	for {
		select {
		case <-ctx.Done():
			return 0, batches, ctx.Err()
		default:
		}

		batch, err := eval.Next()

		if err == io.EOF {
			break
		}

		if err != nil {
			return 0, batches, err
		}

		loss, err := t.Model.EvalStep(batch)
		_ = batch.Close()

		if err != nil {
			return 0, batches, fmt.Errorf("eval step: %w", err)
		}

		lossSum += float64(loss)
		batches++
	}

	if batches == 0 {
		return 0, 0, nil
	}

	return lossSum / float64(batches), batches, nil
}
