// Package camera reads frames from a V4L2 webcam.
package camera

// Options describe the device to open.
type Options struct {
	Device  string
	Width   int
	Height  int
	Buffers uint32
}
