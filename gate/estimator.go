package gate

import (
	"math"

	"github.com/c2h5oh/datasize"
)

// RatioTier maps inputs smaller than Below bytes to an expected ratio.
type RatioTier struct {
	Below uint64
	Ratio float64
}

// RatioPolicy is the size-bucketed ratio table used by EstimateRatio.
//
// Larger tables expose more redundancy to the codebook, so ratios never
// decrease as the size grows. The last tier is unbounded.
var RatioPolicy = []RatioTier{
	{Below: uint64(datasize.MB), Ratio: 2.5},
	{Below: uint64(10 * datasize.MB), Ratio: 4.0},
	{Below: uint64(100 * datasize.MB), Ratio: 5.5},
	{Below: math.MaxUint64, Ratio: 7.0},
}

// EstimateRatio predicts the compression ratio for an input of size bytes
// without encoding it.
func EstimateRatio(size uint64) float64 {
	for _, tier := range RatioPolicy {
		if size < tier.Below {
			return tier.Ratio
		}
	}

	return RatioPolicy[len(RatioPolicy)-1].Ratio
}
