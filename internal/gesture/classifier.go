// Package gesture scores hand landmarks against a sign vocabulary.
package gesture

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ayusman/lexi/internal/detector"
	"github.com/ayusman/lexi/internal/vocabulary"
)

// MaxScore is the top of the confidence scale returned by classifiers.
const MaxScore = 10.0

// Match is a sign label with its confidence. Higher is better.
type Match struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier scores one hand against a fixed vocabulary.
type Classifier interface {
	// Classify returns every vocabulary entry scoring at least minScore,
	// best first.
	Classify(ctx context.Context, hand *detector.HandLandmarks, minScore float64) ([]Match, error)
}

// Bend angles, in degrees, at which a finger is fully in each curl state.
// Memberships fall off linearly between neighbouring centres.
const (
	noCurlCenter   = 0.0
	halfCurlCenter = 60.0
	fullCurlCenter = 120.0
	curlSpread     = 60.0
)

// CurlClassifier estimates how far each finger is curled and scores every
// descriptor of its vocabulary on a 0..MaxScore scale.
type CurlClassifier struct {
	vocab *vocabulary.Vocabulary
}

// NewCurlClassifier creates a classifier for the given vocabulary.
func NewCurlClassifier(vocab *vocabulary.Vocabulary) (*CurlClassifier, error) {
	if err := vocab.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vocabulary: %w", err)
	}
	return &CurlClassifier{vocab: vocab}, nil
}

// Vocabulary returns the vocabulary the classifier was built from.
func (c *CurlClassifier) Vocabulary() *vocabulary.Vocabulary {
	return c.vocab
}

// Classify implements Classifier. Matches keep vocabulary order among equal
// scores.
func (c *CurlClassifier) Classify(ctx context.Context, hand *detector.HandLandmarks, minScore float64) ([]Match, error) {
	if hand == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	curls := EstimateCurls(hand.Normalize())

	var matches []Match
	for _, d := range c.vocab.Descriptors {
		score := scoreDescriptor(d, curls)
		if score >= minScore {
			matches = append(matches, Match{Label: d.Name, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return matches, nil
}

// CurlMembership holds, per curl state, how strongly a finger belongs to it (0..1).
type CurlMembership [3]float64

// Dominant returns the curl state with the highest membership.
func (m CurlMembership) Dominant() vocabulary.Curl {
	best := vocabulary.NoCurl
	for _, c := range vocabulary.AllCurls {
		if m[c] > m[best] {
			best = c
		}
	}
	return best
}

// EstimateCurls measures the bend of every finger, thumb first.
func EstimateCurls(hand *detector.HandLandmarks) [detector.NumFingers]CurlMembership {
	var out [detector.NumFingers]CurlMembership
	if hand == nil {
		return out
	}
	for i := 0; i < detector.NumFingers; i++ {
		out[i] = membership(fingerBend(hand.FingerChain(i)))
	}
	return out
}

// fingerBend returns the angle in degrees between the proximal segment
// (base to first joint) and the distal segment (last joint to tip).
func fingerBend(chain [4]detector.Point3D) float64 {
	proximal := sub(chain[1], chain[0])
	distal := sub(chain[3], chain[2])

	np, nd := norm(proximal), norm(distal)
	if np < 1e-10 || nd < 1e-10 {
		return 0
	}

	cos := (proximal.X*distal.X + proximal.Y*distal.Y + proximal.Z*distal.Z) / (np * nd)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func membership(bend float64) CurlMembership {
	tri := func(center float64) float64 {
		return math.Max(0, 1-math.Abs(bend-center)/curlSpread)
	}

	m := CurlMembership{
		vocabulary.NoCurl:   tri(noCurlCenter),
		vocabulary.HalfCurl: tri(halfCurlCenter),
		vocabulary.FullCurl: tri(fullCurlCenter),
	}
	if bend >= fullCurlCenter {
		m[vocabulary.FullCurl] = 1
	}
	return m
}

func scoreDescriptor(d vocabulary.Descriptor, curls [detector.NumFingers]CurlMembership) float64 {
	var total, got float64
	for _, r := range d.Curls {
		total += r.Weight
		got += r.Weight * curls[r.Finger][r.Curl]
	}
	if total == 0 {
		return 0
	}
	return MaxScore * got / total
}

func sub(a, b detector.Point3D) detector.Point3D {
	return detector.Point3D{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func norm(p detector.Point3D) float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}
