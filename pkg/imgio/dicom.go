package imgio

import (
	"fmt"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// dicomMagicOffset is the position of the DICM marker, right after the
// 128 byte preamble of a part 10 file.
const dicomMagicOffset = 128

// DICOMInfo summarizes the acquisition identity of a DICOM file.
type DICOMInfo struct {
	PatientID         string
	Modality          string
	SeriesInstanceUID string
	SeriesDescription string
}

// hasDICOMMagic reports whether the file carries the DICM marker. The
// parser alone is too lenient, it accepts all-zero input.
func hasDICOMMagic(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	magic := make([]byte, 4)
	if _, err := file.ReadAt(magic, dicomMagicOffset); err != nil {
		return false
	}
	return string(magic) == "DICM"
}

// IsDICOM reports whether the file carries the DICM marker and parses as
// a DICOM dataset.
func IsDICOM(path string) bool {
	if !hasDICOMMagic(path) {
		return false
	}
	_, err := dicom.ParseFile(path, nil)
	return err == nil
}

// ReadDICOMInfo parses a DICOM file and extracts the patient, modality and
// series identifiers. Absent optional tags are left empty.
func ReadDICOMInfo(path string) (*DICOMInfo, error) {
	if !hasDICOMMagic(path) {
		return nil, fmt.Errorf("'%s' is not a DICOM file, the DICM marker is missing", path)
	}
	dataset, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing DICOM file '%s': %w", path, err)
	}

	info := &DICOMInfo{}
	read := func(t tag.Tag, dest *string) {
		element, err := dataset.FindElementByTag(t)
		if err != nil {
			return
		}
		if values := dicom.MustGetStrings(element.Value); len(values) > 0 {
			*dest = values[0]
		}
	}
	read(tag.PatientID, &info.PatientID)
	read(tag.Modality, &info.Modality)
	read(tag.SeriesInstanceUID, &info.SeriesInstanceUID)
	read(tag.SeriesDescription, &info.SeriesDescription)
	return info, nil
}
