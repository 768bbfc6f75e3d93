// Package journal persists training run history: one row per run and one
// per completed epoch, stored in a SQLite database so separate training
// invocations accumulate into a comparable record.
package journal

import (
	"fmt"
	"time"

	"github.com/boxtrain/boxtrain"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run is one training invocation
type Run struct {
	// ID is a generated unique run identifier
	ID string `gorm:"primaryKey"`
	// StartedAt is when the run began
	StartedAt time.Time
	// Epochs is the configured epoch total
	Epochs int
	// CheckpointPath is where the run writes its weights
	CheckpointPath string
}

// EpochRecord is the outcome of one completed epoch
type EpochRecord struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RunID        string `gorm:"index"`
	Epoch        int
	GlobalStep   int64
	TrainLoss    float64
	EvalLoss     float64
	LearningRate float64
	Checkpointed bool
	DurationMS   int64
}

// Journal stores runs and their epoch records
type Journal struct {
	db *gorm.DB
}

// Open opens or creates the journal database at path and migrates its
// schema
func Open(path string) (*Journal, error) {

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})

	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %v: %w", path, err, boxtrain.ErrResource)
	}

	if err := db.AutoMigrate(&Run{}, &EpochRecord{}); err != nil {
		return nil, fmt.Errorf("migrating journal %s: %v: %w", path, err, boxtrain.ErrResource)
	}

	return &Journal{db: db}, nil
}

// StartRun registers a new training run
func (j *Journal) StartRun(epochs int, checkpointPath string) (*Run, error) {

	run := &Run{
		ID:             uuid.NewString(),
		StartedAt:      time.Now(),
		Epochs:         epochs,
		CheckpointPath: checkpointPath,
	}

	if err := j.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	return run, nil
}

// Hook returns an epoch hook appending each finished epoch to the run's
// record
func (j *Journal) Hook(run *Run) boxtrain.EpochHook {

	return boxtrain.EpochHookFunc(func(state boxtrain.EpochState) error {

		rec := &EpochRecord{
			RunID:        run.ID,
			Epoch:        state.Epoch,
			GlobalStep:   state.GlobalStep,
			TrainLoss:    state.TrainLoss,
			EvalLoss:     state.EvalLoss,
			LearningRate: state.LearningRate,
			Checkpointed: state.Checkpointed,
			DurationMS:   state.Duration.Milliseconds(),
		}

		if err := j.db.Create(rec).Error; err != nil {
			return fmt.Errorf("recording epoch %d: %w", state.Epoch, err)
		}

		return nil
	})
}

// Runs returns all recorded runs, oldest first
func (j *Journal) Runs() ([]Run, error) {

	var runs []Run

	if err := j.db.Order("started_at").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// Epochs returns the epoch records of one run in epoch order
func (j *Journal) Epochs(runID string) ([]EpochRecord, error) {

	var recs []EpochRecord

	err := j.db.Where("run_id = ?", runID).Order("epoch").Find(&recs).Error

	if err != nil {
		return nil, fmt.Errorf("listing epochs of run %s: %w", runID, err)
	}

	return recs, nil
}

// Close releases the underlying database handle
func (j *Journal) Close() error {

	sqlDB, err := j.db.DB()

	if err != nil {
		return err
	}

	return sqlDB.Close()
}
