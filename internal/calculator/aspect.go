package calculator

// Aspect is one of the eight compass buckets a slope can face
type Aspect string

// Compass buckets, each spanning 45° centered on its direction
const (
	AspectN  Aspect = "N"
	AspectNE Aspect = "NE"
	AspectE  Aspect = "E"
	AspectSE Aspect = "SE"
	AspectS  Aspect = "S"
	AspectSW Aspect = "SW"
	AspectW  Aspect = "W"
	AspectNW Aspect = "NW"
)

// Aspects lists the buckets clockwise starting at north
var Aspects = [8]Aspect{AspectN, AspectNE, AspectE, AspectSE, AspectS, AspectSW, AspectW, AspectNW}

// aspectUpperBounds holds the exclusive upper edge of each bucket in Aspects
// order; bearings at or above the last edge wrap back to N.
var aspectUpperBounds = [8]float64{22.5, 67.5, 112.5, 157.5, 202.5, 247.5, 292.5, 337.5}

// CategorizeAspect maps a bearing to its compass bucket. Windows are half-open
// [low, high) with boundaries at the 22.5° mid-points, so 22.5 is NE and
// 337.5 is N. Non-finite bearings map to N.
func CategorizeAspect(bearingDeg float64) Aspect {
	if !isFinite(bearingDeg) {
		return AspectN
	}
	b := NormalizeBearing(bearingDeg)
	for i, upper := range aspectUpperBounds {
		if b < upper {
			return Aspects[i]
		}
	}
	return AspectN
}

// Valid reports whether a is one of the eight buckets
func (a Aspect) Valid() bool {
	return a.index() >= 0
}

func (a Aspect) index() int {
	for i, v := range Aspects {
		if v == a {
			return i
		}
	}
	return -1
}

// AspectHistogram accumulates meters of track per aspect bucket
type AspectHistogram [8]float64

// Add credits distanceM meters to bucket a
func (h *AspectHistogram) Add(a Aspect, distanceM float64) {
	if i := a.index(); i >= 0 {
		h[i] += distanceM
	}
}

// Distance returns the meters accumulated for bucket a
func (h *AspectHistogram) Distance(a Aspect) float64 {
	if i := a.index(); i >= 0 {
		return h[i]
	}
	return 0
}

// Total returns the meters accumulated across all buckets
func (h *AspectHistogram) Total() float64 {
	var total float64
	for _, d := range h {
		total += d
	}
	return total
}

// Dominant returns the bucket holding the most distance. Ties go to the
// bucket that comes first clockwise from north. ok is false when the
// histogram is empty.
func (h *AspectHistogram) Dominant() (aspect Aspect, ok bool) {
	var best float64
	for i, d := range h {
		if d > best {
			best = d
			aspect = Aspects[i]
			ok = true
		}
	}
	return aspect, ok
}

// Breakdown converts the histogram to percentages of its total, rounded to
// one decimal. An empty histogram yields all zeros.
func (h *AspectHistogram) Breakdown() AspectBreakdown {
	total := h.Total()
	var pct [8]float64
	if total > 0 {
		for i, d := range h {
			pct[i] = round1(d / total * 100)
		}
	}
	return AspectBreakdown{
		N:  pct[0],
		NE: pct[1],
		E:  pct[2],
		SE: pct[3],
		S:  pct[4],
		SW: pct[5],
		W:  pct[6],
		NW: pct[7],
	}
}

// AspectBreakdown is the percentage of steep distance facing each bucket
type AspectBreakdown struct {
	N  float64 `json:"N"`
	NE float64 `json:"NE"`
	E  float64 `json:"E"`
	SE float64 `json:"SE"`
	S  float64 `json:"S"`
	SW float64 `json:"SW"`
	W  float64 `json:"W"`
	NW float64 `json:"NW"`
}

// Get returns the percentage for bucket a
func (b AspectBreakdown) Get(a Aspect) float64 {
	switch a {
	case AspectN:
		return b.N
	case AspectNE:
		return b.NE
	case AspectE:
		return b.E
	case AspectSE:
		return b.SE
	case AspectS:
		return b.S
	case AspectSW:
		return b.SW
	case AspectW:
		return b.W
	case AspectNW:
		return b.NW
	}
	return 0
}

// Sum adds all bucket percentages
func (b AspectBreakdown) Sum() float64 {
	return b.N + b.NE + b.E + b.SE + b.S + b.SW + b.W + b.NW
}
