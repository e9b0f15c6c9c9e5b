// SPDX-License-Identifier: MIT
//
// Package features defines the canonical 57-entry feature vector, the
// aggregation of per-frame series into it, and the extractor that runs the
// whole analysis pipeline on a waveform.
package features

import (
	"fmt"
)

// Count is the number of entries in a feature vector.
const Count = 57

// Names lists the feature names in vector order. Trained models depend on
// this exact order.
var Names = [Count]string{
	"chroma_stft_mean",
	"chroma_stft_var",
	"rms_mean",
	"rms_var",
	"spectral_centroid_mean",
	"spectral_centroid_var",
	"spectral_bandwidth_mean",
	"spectral_bandwidth_var",
	"rolloff_mean",
	"rolloff_var",
	"zero_crossing_rate_mean",
	"zero_crossing_rate_var",
	"harmony_mean",
	"harmony_var",
	"perceptr_mean",
	"perceptr_var",
	"tempo",
	"mfcc1_mean",
	"mfcc1_var",
	"mfcc2_mean",
	"mfcc2_var",
	"mfcc3_mean",
	"mfcc3_var",
	"mfcc4_mean",
	"mfcc4_var",
	"mfcc5_mean",
	"mfcc5_var",
	"mfcc6_mean",
	"mfcc6_var",
	"mfcc7_mean",
	"mfcc7_var",
	"mfcc8_mean",
	"mfcc8_var",
	"mfcc9_mean",
	"mfcc9_var",
	"mfcc10_mean",
	"mfcc10_var",
	"mfcc11_mean",
	"mfcc11_var",
	"mfcc12_mean",
	"mfcc12_var",
	"mfcc13_mean",
	"mfcc13_var",
	"mfcc14_mean",
	"mfcc14_var",
	"mfcc15_mean",
	"mfcc15_var",
	"mfcc16_mean",
	"mfcc16_var",
	"mfcc17_mean",
	"mfcc17_var",
	"mfcc18_mean",
	"mfcc18_var",
	"mfcc19_mean",
	"mfcc19_var",
	"mfcc20_mean",
	"mfcc20_var",
}

// Fixed slot indices.
const (
	IdxChromaMean = iota * 2
	IdxRMSMean
	IdxCentroidMean
	IdxBandwidthMean
	IdxRolloffMean
	IdxZCRMean
	IdxHarmonyMean
	IdxPerceptrMean
	IdxTempo // 16; the single tempo slot.
)

// IdxMFCCMean returns the slot of the mean of cepstral coefficient i
// (0-based); its variance follows at IdxMFCCMean(i)+1.
func IdxMFCCMean(i int) int { return IdxTempo + 1 + 2*i }

var nameIndex = func() map[string]int {
	m := make(map[string]int, Count)
	for i, n := range Names {
		m[n] = i
	}
	return m
}()

// Index returns the slot of the named feature.
func Index(name string) (int, bool) {
	i, ok := nameIndex[name]
	return i, ok
}

// MismatchError reports the first position where a list of feature names
// departs from Names.
type MismatchError struct {
	Position int    // Index of the first difference, or -1 for a length mismatch.
	Got      string // Name found at Position.
	Want     string // Canonical name at Position.
	Len      int    // Length of the offending list.
}

func (e *MismatchError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("feature list has %d names, want %d", e.Len, Count)
	}
	return fmt.Sprintf("feature %d is %q, want %q", e.Position, e.Got, e.Want)
}

// CheckNames verifies that names equals Names in content and order.
func CheckNames(names []string) error {
	if len(names) != Count {
		return &MismatchError{Position: -1, Len: len(names)}
	}
	for i, n := range names {
		if n != Names[i] {
			return &MismatchError{Position: i, Got: n, Want: Names[i], Len: len(names)}
		}
	}
	return nil
}
