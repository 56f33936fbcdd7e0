// Package datasets wraps the genome-archive download endpoint. The endpoint
// is a black box to the pipeline: given an accession it either returns a zip
// payload or fails, and the acquisition stage's retry policy compensates for
// its unreliability.
package datasets
