// Package record captures the raw frames of patch streams and plays them
// back.
//
// A recording is a sequence of msgpack-encoded entries, one per frame,
// stored in a local file or an S3 object. Replay feeds the frames through a
// stream.Consumer so recorded sessions take the same path as live ones.
package record
