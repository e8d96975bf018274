package domain

import "strconv"

// SeriesAttributes is the parsed-file record produced by the DICOM/BIDS
// extraction collaborator. Header values are kept in their raw string
// form; numeric interpretation happens at check evaluation time. The json
// tags double as the stable header field names referenced by
// ValidationCheck.HeaderField.
type SeriesAttributes struct {
	Modality          string `json:"modality"`
	SeriesDescription string `json:"series_description"`
	SequenceName      string `json:"sequence_name"`
	SeriesUID         string `json:"series_uid"`
	SeriesNumber      int64  `json:"series_number"`
	EchoTime          string `json:"echo_time"`
	EchoNumber        string `json:"echo_number"`
	RepetitionTime    string `json:"repetition_time"`
	InversionTime     string `json:"inversion_time"`
	SliceThickness    string `json:"slice_thickness"`
	PhaseEncoding     string `json:"phase_encoding"`
	ImageType         string `json:"image_type"`
	XSpace            string `json:"xspace"`
	YSpace            string `json:"yspace"`
	ZSpace            string `json:"zspace"`
	XStep             string `json:"xstep"`
	YStep             string `json:"ystep"`
	ZStep             string `json:"zstep"`

	// Study context the series is matched against; not a header field.
	Scope QueryScope `json:"-"`
}

// HeaderValue returns the raw value of the named header field and whether
// the field name is known. An empty value for a known field is reported
// as absent.
func (a SeriesAttributes) HeaderValue(field string) (string, bool) {
	var v string
	switch field {
	case "modality":
		v = a.Modality
	case "series_description":
		v = a.SeriesDescription
	case "sequence_name":
		v = a.SequenceName
	case "series_uid":
		v = a.SeriesUID
	case "series_number":
		if a.SeriesNumber != 0 {
			v = strconv.FormatInt(a.SeriesNumber, 10)
		}
	case "echo_time":
		v = a.EchoTime
	case "echo_number":
		v = a.EchoNumber
	case "repetition_time":
		v = a.RepetitionTime
	case "inversion_time":
		v = a.InversionTime
	case "slice_thickness":
		v = a.SliceThickness
	case "phase_encoding":
		v = a.PhaseEncoding
	case "image_type":
		v = a.ImageType
	case "xspace":
		v = a.XSpace
	case "yspace":
		v = a.YSpace
	case "zspace":
		v = a.ZSpace
	case "xstep":
		v = a.XStep
	case "ystep":
		v = a.YStep
	case "zstep":
		v = a.ZStep
	default:
		return "", false
	}
	return v, v != ""
}

// KnownHeaderField reports whether name is one of the stable header
// field names a ValidationCheck may constrain. Unlike HeaderValue it
// says nothing about whether a particular series carries a value.
func KnownHeaderField(name string) bool {
	switch name {
	case "modality", "series_description", "sequence_name", "series_uid",
		"series_number", "echo_time", "echo_number", "repetition_time",
		"inversion_time", "slice_thickness", "phase_encoding", "image_type",
		"xspace", "yspace", "zspace", "xstep", "ystep", "zstep":
		return true
	}
	return false
}

// Key returns the series identity carried on violation records.
func (a SeriesAttributes) Key() SeriesKey {
	return SeriesKey{
		SeriesUID:     a.SeriesUID,
		EchoTime:      a.EchoTime,
		EchoNumber:    a.EchoNumber,
		PhaseEncoding: a.PhaseEncoding,
	}
}
