package model

// DefaultLabels is the class catalog the v1 artifacts were trained with, in
// encoder id order. The encoder artifact stays the runtime source of truth;
// this list is used to report drift.
var DefaultLabels = []string{
	"Chorthippus biguttulus",
	"Gryllus bimaculatus",
	"Ruspolia nitidula",
	"Other Insects",
	"Environmental Noise",
}

// CatalogDrift lists the differences between an encoder and DefaultLabels.
// An empty result means the encoder matches the catalog exactly.
func CatalogDrift(enc Encoder) []string {
	var drift []string
	classes := enc.Classes()
	for i, want := range DefaultLabels {
		switch {
		case i >= len(classes):
			drift = append(drift, "missing class "+want)
		case classes[i] != want:
			drift = append(drift, "class "+classes[i]+" where catalog has "+want)
		}
	}
	for _, extra := range classes[min(len(classes), len(DefaultLabels)):] {
		drift = append(drift, "unknown class "+extra)
	}
	return drift
}
