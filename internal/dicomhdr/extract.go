// Package dicomhdr extracts the protocol-relevant header fields from DICOM
// instance files and folds them into per-series attribute records.
package dicomhdr

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gradienthealth/dicom"
	"github.com/gradienthealth/dicom/dicomtag"

	"scancore/pkg/domain"
)

// Header tags read during extraction. Named locally rather than through the
// dictionary so the extraction surface is visible in one place.
var (
	tagPatientName       = dicomtag.Tag{Group: 0x0010, Element: 0x0010}
	tagStudyUID          = dicomtag.Tag{Group: 0x0020, Element: 0x000D}
	tagSeriesUID         = dicomtag.Tag{Group: 0x0020, Element: 0x000E}
	tagSeriesNumber      = dicomtag.Tag{Group: 0x0020, Element: 0x0011}
	tagModality          = dicomtag.Tag{Group: 0x0008, Element: 0x0060}
	tagImageType         = dicomtag.Tag{Group: 0x0008, Element: 0x0008}
	tagSeriesDescription = dicomtag.Tag{Group: 0x0008, Element: 0x103E}
	tagSequenceName      = dicomtag.Tag{Group: 0x0018, Element: 0x0024}
	tagSliceThickness    = dicomtag.Tag{Group: 0x0018, Element: 0x0050}
	tagRepetitionTime    = dicomtag.Tag{Group: 0x0018, Element: 0x0080}
	tagEchoTime          = dicomtag.Tag{Group: 0x0018, Element: 0x0081}
	tagInversionTime     = dicomtag.Tag{Group: 0x0018, Element: 0x0082}
	tagEchoNumber        = dicomtag.Tag{Group: 0x0018, Element: 0x0086}
	tagSpacingSlices     = dicomtag.Tag{Group: 0x0018, Element: 0x0088}
	tagPhaseEncoding     = dicomtag.Tag{Group: 0x0018, Element: 0x1312}
	tagImagesInAcq       = dicomtag.Tag{Group: 0x0020, Element: 0x1002}
	tagRows              = dicomtag.Tag{Group: 0x0028, Element: 0x0010}
	tagColumns           = dicomtag.Tag{Group: 0x0028, Element: 0x0011}
	tagPixelSpacing      = dicomtag.Tag{Group: 0x0028, Element: 0x0030}
)

// Instance is the header content of a single DICOM file relevant to QC.
type Instance struct {
	StudyUID     string
	SubjectLabel string // PatientName as written by the scanner console
	Series       domain.SeriesAttributes
}

// Extract parses one DICOM instance stream and returns its QC header content.
// Pixel data is dropped during parsing.
func Extract(r io.Reader, size int64) (Instance, error) {
	p, err := dicom.NewParser(r, size, nil)
	if err != nil {
		return Instance{}, fmt.Errorf("open dicom parser: %w", err)
	}
	ds, err := p.Parse(dicom.ParseOptions{DropPixelData: true})
	if err != nil {
		return Instance{}, fmt.Errorf("parse dicom: %w", err)
	}
	return fromDataSet(ds), nil
}

func fromDataSet(ds *dicom.DataSet) Instance {
	inst := Instance{
		StudyUID:     tagString(ds, tagStudyUID),
		SubjectLabel: tagString(ds, tagPatientName),
	}
	attrs := domain.SeriesAttributes{
		Modality:          tagString(ds, tagModality),
		SeriesDescription: tagString(ds, tagSeriesDescription),
		SequenceName:      tagString(ds, tagSequenceName),
		SeriesUID:         tagString(ds, tagSeriesUID),
		EchoTime:          tagString(ds, tagEchoTime),
		EchoNumber:        tagString(ds, tagEchoNumber),
		RepetitionTime:    tagString(ds, tagRepetitionTime),
		InversionTime:     tagString(ds, tagInversionTime),
		SliceThickness:    tagString(ds, tagSliceThickness),
		PhaseEncoding:     tagString(ds, tagPhaseEncoding),
		ImageType:         tagString(ds, tagImageType),
		YSpace:            tagString(ds, tagRows),
		XSpace:            tagString(ds, tagColumns),
		ZSpace:            tagString(ds, tagImagesInAcq),
		ZStep:             tagString(ds, tagSpacingSlices),
	}
	if n, err := strconv.ParseInt(tagString(ds, tagSeriesNumber), 10, 64); err == nil {
		attrs.SeriesNumber = n
	}
	// PixelSpacing is row spacing then column spacing.
	if spacing := tagValues(ds, tagPixelSpacing); len(spacing) >= 2 {
		attrs.YStep = spacing[0]
		attrs.XStep = spacing[1]
	}
	if attrs.ZStep == "" {
		attrs.ZStep = attrs.SliceThickness
	}
	inst.Series = attrs
	return inst
}

// ExtractFile parses the DICOM file at path.
func ExtractFile(path string) (Instance, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Instance{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Instance{}, err
	}
	defer func() { _ = f.Close() }()
	inst, err := Extract(f, st.Size())
	if err != nil {
		return Instance{}, fmt.Errorf("%s: %w", path, err)
	}
	return inst, nil
}

func tagString(ds *dicom.DataSet, tag dicomtag.Tag) string {
	return strings.Join(tagValues(ds, tag), "\\")
}

func tagValues(ds *dicom.DataSet, tag dicomtag.Tag) []string {
	elem, err := ds.FindElementByTag(tag)
	if err != nil || elem == nil {
		return nil
	}
	out := make([]string, 0, len(elem.Value))
	for _, v := range elem.Value {
		var s string
		switch val := v.(type) {
		case string:
			s = strings.TrimSpace(val)
		case int:
			s = strconv.Itoa(val)
		case int64:
			s = strconv.FormatInt(val, 10)
		case uint16:
			s = strconv.FormatUint(uint64(val), 10)
		case uint32:
			s = strconv.FormatUint(uint64(val), 10)
		case float64:
			s = strconv.FormatFloat(val, 'g', -1, 64)
		default:
			s = fmt.Sprint(val)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
