// Package vocabulary defines the static set of sign descriptors the gesture
// classifier scores hand poses against.
package vocabulary

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Finger identifies one finger of a hand.
type Finger int

const (
	Thumb Finger = iota
	Index
	Middle
	Ring
	Pinky
)

// AllFingers lists the fingers in landmark order.
var AllFingers = []Finger{Thumb, Index, Middle, Ring, Pinky}

var fingerNames = []string{"thumb", "index", "middle", "ring", "pinky"}

func (f Finger) String() string {
	if f < Thumb || f > Pinky {
		return fmt.Sprintf("finger(%d)", int(f))
	}
	return fingerNames[f]
}

// MarshalText implements encoding.TextMarshaler.
func (f Finger) MarshalText() ([]byte, error) {
	if f < Thumb || f > Pinky {
		return nil, fmt.Errorf("unknown finger %d", int(f))
	}
	return []byte(fingerNames[f]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Finger) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range fingerNames {
		if n == name {
			*f = Finger(i)
			return nil
		}
	}
	return fmt.Errorf("unknown finger %q", string(text))
}

// Curl is how far a finger is bent towards the palm.
type Curl int

const (
	NoCurl Curl = iota
	HalfCurl
	FullCurl
)

// AllCurls lists the curl categories from straight to fully bent.
var AllCurls = []Curl{NoCurl, HalfCurl, FullCurl}

var curlNames = []string{"none", "half", "full"}

func (c Curl) String() string {
	if c < NoCurl || c > FullCurl {
		return fmt.Sprintf("curl(%d)", int(c))
	}
	return curlNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Curl) MarshalText() ([]byte, error) {
	if c < NoCurl || c > FullCurl {
		return nil, fmt.Errorf("unknown curl %d", int(c))
	}
	return []byte(curlNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Curl) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range curlNames {
		if n == name {
			*c = Curl(i)
			return nil
		}
	}
	return fmt.Errorf("unknown curl %q", string(text))
}

// CurlRule expects a finger to be in a given curl state. Weight scales the
// rule's contribution to the descriptor score.
type CurlRule struct {
	Finger Finger  `json:"finger" yaml:"finger"`
	Curl   Curl    `json:"curl" yaml:"curl"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Descriptor is the pose profile of a single sign.
type Descriptor struct {
	Name  string     `json:"name" yaml:"name"`
	Curls []CurlRule `json:"curls" yaml:"curls"`
}

// Vocabulary is an ordered list of descriptors.
type Vocabulary struct {
	Descriptors []Descriptor `json:"descriptors" yaml:"descriptors"`
}

// Names returns the sign names in vocabulary order.
func (v *Vocabulary) Names() []string {
	names := make([]string, len(v.Descriptors))
	for i, d := range v.Descriptors {
		names[i] = d.Name
	}
	return names
}

// Validate checks that the vocabulary can be handed to a classifier.
func (v *Vocabulary) Validate() error {
	if v == nil || len(v.Descriptors) == 0 {
		return errors.New("vocabulary is empty")
	}

	seen := make(map[string]bool, len(v.Descriptors))
	for i, d := range v.Descriptors {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("descriptor %d has no name", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate descriptor %q", d.Name)
		}
		seen[d.Name] = true

		if len(d.Curls) == 0 {
			return fmt.Errorf("descriptor %q has no curl rules", d.Name)
		}
		for _, r := range d.Curls {
			if r.Finger < Thumb || r.Finger > Pinky {
				return fmt.Errorf("descriptor %q: unknown finger %d", d.Name, int(r.Finger))
			}
			if r.Curl < NoCurl || r.Curl > FullCurl {
				return fmt.Errorf("descriptor %q: unknown curl %d", d.Name, int(r.Curl))
			}
			if r.Weight <= 0 || math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
				return fmt.Errorf("descriptor %q: weight for %s must be positive and finite", d.Name, r.Finger)
			}
		}
	}
	return nil
}

// Version returns a short content hash identifying this exact vocabulary.
// Two vocabularies with the same descriptors in the same order share a version.
func (v *Vocabulary) Version() string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

// Decode reads a YAML vocabulary and validates it.
func Decode(r io.Reader) (*Vocabulary, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var v Vocabulary
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Encode writes the vocabulary as YAML.
func (v *Vocabulary) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
