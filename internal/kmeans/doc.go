// Package kmeans trains IVFIndex's centroids via sample-capped Lloyd's
// algorithm. See Train for details.
package kmeans
