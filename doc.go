/*
boxtrain provides the orchestration core for assembling object-detection
training and inference pipelines in Go: dataset adapters, ragged batching,
box-aware augmentation, densification into fixed-shape model inputs, an
epoch driven training loop with learning rate scheduling and checkpointing,
and a decode stage with swappable suppression thresholds.

The detector itself sits behind the Model interface and is treated as an
opaque collaborator owning its own weights and optimization step.  The
gridnet subpackage contains a minimal reference backend so the pipeline can
be exercised end to end without external hardware or frameworks.

See example code and usage in the example subdirectory.
*/
package boxtrain
