package vocabulary

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	v := Default()

	require.NoError(t, v.Validate())
	assert.Equal(t, []string{
		"hello", "thank you", "yes", "no", "please", "help",
		"sorry", "love", "learn", "good", "bad", "water",
	}, v.Names())

	t.Run("no leaves the thumb unconstrained", func(t *testing.T) {
		for _, d := range v.Descriptors {
			if d.Name != "no" {
				continue
			}
			require.Len(t, d.Curls, 4)
			for _, r := range d.Curls {
				assert.NotEqual(t, Thumb, r.Finger)
			}
		}
	})
}

func TestVersion(t *testing.T) {
	a := Default()
	b := Default()

	assert.Len(t, a.Version(), 12)
	assert.Equal(t, a.Version(), b.Version(), "same content must share a version")

	b.Descriptors[0].Curls[0].Weight = 0.5
	assert.NotEqual(t, a.Version(), b.Version())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		vocab   *Vocabulary
		wantErr string
	}{
		{
			name:    "nil",
			vocab:   nil,
			wantErr: "empty",
		},
		{
			name:    "no descriptors",
			vocab:   &Vocabulary{},
			wantErr: "empty",
		},
		{
			name: "blank name",
			vocab: &Vocabulary{Descriptors: []Descriptor{
				{Name: " ", Curls: []CurlRule{{Finger: Index, Curl: NoCurl, Weight: 1}}},
			}},
			wantErr: "no name",
		},
		{
			name: "duplicate",
			vocab: &Vocabulary{Descriptors: []Descriptor{
				{Name: "a", Curls: []CurlRule{{Finger: Index, Curl: NoCurl, Weight: 1}}},
				{Name: "a", Curls: []CurlRule{{Finger: Index, Curl: FullCurl, Weight: 1}}},
			}},
			wantErr: "duplicate",
		},
		{
			name: "no rules",
			vocab: &Vocabulary{Descriptors: []Descriptor{
				{Name: "a"},
			}},
			wantErr: "no curl rules",
		},
		{
			name: "zero weight",
			vocab: &Vocabulary{Descriptors: []Descriptor{
				{Name: "a", Curls: []CurlRule{{Finger: Index, Curl: NoCurl, Weight: 0}}},
			}},
			wantErr: "positive",
		},
		{
			name: "NaN weight",
			vocab: &Vocabulary{Descriptors: []Descriptor{
				{Name: "a", Curls: []CurlRule{{Finger: Index, Curl: NoCurl, Weight: math.NaN()}}},
			}},
			wantErr: "finite",
		},
		{
			name: "infinite weight",
			vocab: &Vocabulary{Descriptors: []Descriptor{
				{Name: "a", Curls: []CurlRule{{Finger: Index, Curl: NoCurl, Weight: math.Inf(1)}}},
			}},
			wantErr: "finite",
		},
		{
			name: "bad finger",
			vocab: &Vocabulary{Descriptors: []Descriptor{
				{Name: "a", Curls: []CurlRule{{Finger: Finger(9), Curl: NoCurl, Weight: 1}}},
			}},
			wantErr: "unknown finger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.vocab.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		in := `
descriptors:
  - name: point
    curls:
      - {finger: index, curl: none, weight: 1}
      - {finger: middle, curl: full, weight: 0.5}
`
		v, err := Decode(strings.NewReader(in))
		require.NoError(t, err)

		want := &Vocabulary{Descriptors: []Descriptor{{
			Name: "point",
			Curls: []CurlRule{
				{Finger: Index, Curl: NoCurl, Weight: 1},
				{Finger: Middle, Curl: FullCurl, Weight: 0.5},
			},
		}}}
		if diff := cmp.Diff(want, v); diff != "" {
			t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Decode(strings.NewReader("descriptors: []\nextra: 1\n"))
		assert.Error(t, err)
	})

	t.Run("unknown curl", func(t *testing.T) {
		in := "descriptors:\n  - name: x\n    curls:\n      - {finger: index, curl: sideways, weight: 1}\n"
		_, err := Decode(strings.NewReader(in))
		assert.Error(t, err)
	})

	t.Run("non-finite weights", func(t *testing.T) {
		for _, w := range []string{".nan", ".inf", "-.inf"} {
			in := "descriptors:\n  - name: x\n    curls:\n      - {finger: index, curl: none, weight: " + w + "}\n"
			_, err := Decode(strings.NewReader(in))
			assert.Error(t, err, w)
		}
	})

	t.Run("encode round trip keeps the version", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Default().Encode(&buf))

		v, err := Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, Default().Version(), v.Version())
	})
}

func TestFingerAndCurlText(t *testing.T) {
	var f Finger
	require.NoError(t, f.UnmarshalText([]byte("Pinky")))
	assert.Equal(t, Pinky, f)
	assert.Error(t, f.UnmarshalText([]byte("toe")))

	var c Curl
	require.NoError(t, c.UnmarshalText([]byte("half")))
	assert.Equal(t, HalfCurl, c)
	assert.Equal(t, "full", FullCurl.String())
}
