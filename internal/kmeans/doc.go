// Package kmeans implements k-means clustering for peak classification.
//
// Used internally by the kpeaks sorter to group detected peaks by their
// per-channel amplitude features.
package kmeans
