package gate

import "fmt"

// Reason explains why the gate did not accept a compression.
type Reason string

const (
	ReasonEmptyInput  Reason = "empty_input"
	ReasonBelowSize   Reason = "below_size_threshold"
	ReasonBelowRatio  Reason = "below_ratio_threshold"
	ReasonCodecError  Reason = "codec_error"
	ReasonRatioNotMet Reason = "ratio_not_met"
)

// Decision is the outcome of Gate.Decide. It is one of Skip, Accept or Reject.
type Decision interface {
	fmt.Stringer
	decision()
}

// Skip means compression was not attempted.
type Skip struct {
	Reason         Reason
	EstimatedRatio float64
}

// Accept means the blob met the ratio threshold and replaces the input.
type Accept struct {
	Blob           []byte
	Ratio          float64
	EstimatedRatio float64
}

// Reject means compression was attempted but the input must be kept.
type Reject struct {
	Reason   Reason
	Fallback []byte
	// Ratio is the achieved ratio, zero when the codec failed.
	Ratio float64
	// Err is the codec failure for ReasonCodecError.
	Err error
}

func (Skip) decision()   {}
func (Accept) decision() {}
func (Reject) decision() {}

func (d Skip) String() string {
	return "skip (" + string(d.Reason) + ")"
}

func (d Accept) String() string {
	return fmt.Sprintf("accept (%.2fx)", d.Ratio)
}

func (d Reject) String() string {
	if d.Err != nil {
		return fmt.Sprintf("reject (%s: %v)", d.Reason, d.Err)
	}

	return fmt.Sprintf("reject (%s, %.2fx)", d.Reason, d.Ratio)
}

// Output returns the bytes the clean filter must emit for d, given the
// original input raw.
func Output(d Decision, raw []byte) []byte {
	switch d := d.(type) {
	case Accept:
		return d.Blob
	case Reject:
		if d.Fallback != nil {
			return d.Fallback
		}

		return raw
	default:
		return raw
	}
}
