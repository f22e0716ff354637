// Package runindex opens sharded acquisition runs, validates their
// metadata and reconstructs the run's logical record sequence.
//
// A run is a directory (or object-store prefix) of shard files, each
// holding slices of the same acquisition: some sources are fanned out
// over a fixed number of shards per slice, others are split into
// sequence shards over time. Runindex discovers the shards, cross
// checks their metadata, and builds a canonical index from which
// trains and individual records can be addressed by absolute train
// ID, relative index, flat index or (source, train, pulse).
//
// Features:
//
//   - Parallel shard scanning with bounded read concurrency
//   - Cross-shard consistency validation with structured warnings
//     instead of hard failures: unreadable shards, partial coverage,
//     pulse count mismatches and absent sources shrink the safe view
//     but never abort the run
//   - Deterministic canonical index with O(log n) address resolution
//     between all addressing schemes
//   - Lazy, ordered, restartable record streaming with per-stream
//     LRU-bounded shard handle pools
//   - Local filesystem, S3 and MinIO blob stores
//   - Reference shard container format with zstd/lz4 block compression
//
// # Quick Start
//
// Open a run directory and stream its records:
//
//	ctx := context.Background()
//	run, err := runindex.OpenRun(ctx, "/data/r0034",
//	    runindex.WithFanOutRule("*/DET/*", 16),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer run.Close()
//
//	fmt.Print(run.Report().Summary())
//
//	s, err := run.Stream(runindex.StreamSourcePattern("*/DET/*"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for rec, err := range s.All(ctx) {
//	    if errors.Is(err, runindex.ErrMissingData) {
//	        continue // partial record, stream keeps going
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    process(rec)
//	}
//
// Random access by train:
//
//	td, err := run.TrainFromID(ctx, 10002)
//
// Runs held in object storage work the same way through the
// blobstore/s3 or blobstore/minio packages with runindex.Open.
package runindex
