package gate

import (
	"bytes"

	"github.com/arloliu/sempress-lfs/codec/smp"
	"github.com/arloliu/sempress-lfs/settings"
)

// Payload classifies the input of the smudge path.
type Payload uint8

const (
	PayloadPlain      Payload = 0x1 // PayloadPlain is passed through unchanged.
	PayloadCompressed Payload = 0x2 // PayloadCompressed is decoded.
)

func (p Payload) String() string {
	switch p {
	case PayloadPlain:
		return "plain"
	case PayloadCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

const (
	sniffWindow     = 100
	sniffCommaLimit = 5
)

// Classify decides whether data stored in the repository is a compressed
// blob or a plain file.
//
// DetectMagic checks for the blob magic. DetectSniff inspects the first 100
// bytes and treats data with more than 5 commas as plain CSV; it misfires on
// CSV with few columns and is kept for repositories written by older tools.
func Classify(data []byte, policy settings.DetectionPolicy) Payload {
	if policy == settings.DetectSniff {
		head := data[:min(len(data), sniffWindow)]
		if bytes.Count(head, []byte{','}) > sniffCommaLimit {
			return PayloadPlain
		}

		return PayloadCompressed
	}

	if smp.IsBlob(data) {
		return PayloadCompressed
	}

	return PayloadPlain
}
