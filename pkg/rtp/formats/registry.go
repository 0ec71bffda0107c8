package formats

// Kind names a supported media format, independent of the rtp package's
// own Format enum, so this package has no import-time dependency on it.
type Kind int

const (
	KindGeneric Kind = iota
	KindOpus
	KindH264
	KindH265
	KindH266
)

// New returns the Codec implementing kind.
func New(kind Kind) Codec {
	switch kind {
	case KindOpus:
		return Opus{}
	case KindH264:
		return H264{}
	case KindH265:
		return H265{}
	case KindH266:
		return H266{}
	default:
		return Generic{}
	}
}
