package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MotionDetector decides whether a frame is worth running hand detection
// on, by differencing it against the previous frame. After motion the gate
// stays open for a few frames so that a sign held still after moving into
// place is still sampled.
type MotionDetector struct {
	threshold   float64
	hold        int
	remaining   int
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
	// DefaultMotionHold is how many frames the gate stays open after motion.
	DefaultMotionHold = 15
)

// NewMotionDetector creates a MotionDetector. threshold is the percentage of
// pixels that must change (1.0 means 1%); hold is the number of frames the
// gate stays open after the last motion, negative values select
// DefaultMotionHold.
func NewMotionDetector(threshold float64, hold int) *MotionDetector {
	if hold < 0 {
		hold = DefaultMotionHold
	}
	return &MotionDetector{
		threshold: threshold,
		hold:      hold,
		prevGray:  gocv.NewMat(),
	}
}

// Detect compares frame with the previous one. It reports whether the gate
// is open and the percentage of pixels that changed. The first frame after
// a reset has no baseline and always opens the gate.
//
// Algorithm:
// 1. Convert frame to grayscale
// 2. Apply Gaussian blur (21x21) to reduce noise
// 3. Difference against the previous blurred frame
// 4. Threshold the difference (threshold=25)
// 5. changePercent = non-zero pixels / total pixels
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.initialized {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		m.remaining = m.hold
		return true, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	nonZero := gocv.CountNonZero(thresh)
	totalPixels := thresh.Rows() * thresh.Cols()
	changePercent := float64(nonZero) / float64(totalPixels) * 100.0

	blurred.CopyTo(&m.prevGray)

	if changePercent > m.threshold {
		m.remaining = m.hold
		return true, changePercent
	}
	if m.remaining > 0 {
		m.remaining--
		return true, changePercent
	}
	return false, changePercent
}

// Reset drops the baseline frame so the next Detect starts over.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *MotionDetector) resetLocked() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
	m.remaining = 0
}

// SetThreshold sets the motion detection threshold.
// Values less than or equal to 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.threshold = threshold
}

// Threshold returns the motion detection threshold.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}
