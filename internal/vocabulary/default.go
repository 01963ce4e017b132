package vocabulary

// profile builds a descriptor with unit weights. Fingers left nil are
// unconstrained.
func profile(name string, thumb, index, middle, ring, pinky *Curl) Descriptor {
	d := Descriptor{Name: name}
	for i, c := range []*Curl{thumb, index, middle, ring, pinky} {
		if c == nil {
			continue
		}
		d.Curls = append(d.Curls, CurlRule{Finger: Finger(i), Curl: *c, Weight: 1.0})
	}
	return d
}

// Default returns the built-in ASL vocabulary.
func Default() *Vocabulary {
	none, half, full := NoCurl, HalfCurl, FullCurl

	return &Vocabulary{Descriptors: []Descriptor{
		// open palm facing forward
		profile("hello", &none, &none, &none, &none, &none),
		// flat hand from the chin moving forward
		profile("thank you", &half, &none, &none, &none, &none),
		// nodding fist
		profile("yes", &half, &full, &full, &full, &full),
		// index and middle finger snapping onto the thumb
		profile("no", nil, &none, &none, &full, &full),
		// flat hand circling over the heart
		profile("please", &half, &none, &none, &none, &none),
		// fist with the thumb up resting on the other palm
		profile("help", &none, &full, &full, &full, &full),
		// fist circling on the chest
		profile("sorry", &half, &full, &full, &full, &full),
		// I-love-you hand shape
		profile("love", &half, &none, &full, &full, &none),
		// open palm at the forehead
		profile("learn", &none, &none, &none, &none, &none),
		// flat hand from the mouth moving down
		profile("good", &half, &none, &none, &none, &none),
		// fingers pointing down
		profile("bad", &half, &none, &none, &none, &none),
		// W hand shape touching the lips
		profile("water", &full, &none, &none, &none, &half),
	}}
}
