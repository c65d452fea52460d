// Package spikego provides an embedded spike sorting analysis toolkit for Go.
//
// Spikego pairs extracellular recordings with spike sortings and computes
// named extensions on them: average unit templates, per-spike source
// locations, and more. Sorter outputs can be scored against a ground
// truth sorting with event-level matching.
//
// # Quick Start
//
//	recording, gt, _ := extractors.ToyExample()
//	a, _ := spikego.NewSortingAnalyzer(recording, gt)
//
//	a.ComputeTemplates(ctx)
//	locations, _ := a.ComputeSpikeLocations(ctx)
//
// # Spike Locations
//
// Locations are computed per spike through a chunked, parallel pipeline.
// Defaults follow the center-of-mass method; overrides are partial:
//
//	a.ComputeSpikeLocations(ctx,
//	    postprocessing.WithMethod(localization.MonopolarTriangulation),
//	    postprocessing.WithRadiusUm(75),
//	)
//
// # Ground Truth Comparison
//
//	tested, _ := a.RunSorter(ctx, "threshold", nil)
//	cmp, _ := a.CompareSorting(ctx, tested, comparison.WithExhaustiveGT(true))
//	fmt.Println(cmp.Performance())
//
// # Persistence
//
// Analyzers save to any BlobStore (in-memory, local folder, MinIO, S3):
//
//	a.Save(ctx, store)
//	a, _ = spikego.Load(ctx, store, recording, gt)
//
// # Key Features
//
//   - Analyzer container with a named extension registry
//   - Chunked job pipeline with worker, memory and IO limits
//   - Three localization methods (center of mass, monopolar
//     triangulation, grid convolution)
//   - Event-matched ground truth comparison with per-unit metrics
//   - Cloud-native storage (S3/MinIO via BlobStore)
package spikego
