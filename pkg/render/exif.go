package render

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
)

// Windows XP text tags in IFD0. Values are UTF-16LE strings stored as BYTE arrays.
const (
	TagDeviation = 0x9C9B // 40091, XPTitle
	TagDiffering = 0x9C9C // 40092, XPComment
	TagSpots     = 0x9C9F // 40095, XPSubject
)

const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerEOI  = 0xD9
	markerAPP1 = 0xE1
	tiffByte   = 1
)

var exifHeader = []byte("Exif\x00\x00")

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ArtifactWriteError reports a heatmap that could not be persisted.
type ArtifactWriteError struct {
	Path string
	Err  error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("write heatmap %s: %v", e.Path, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error { return e.Err }

// Tags returns the metadata tags describing s.
func (s Summary) Tags() map[uint16]string {
	return map[uint16]string{
		TagDiffering: s.DifferingText(),
		TagDeviation: s.DeviationText(),
		TagSpots:     s.SpotsText(),
	}
}

// EncodeJPEG writes img as a JPEG whose EXIF block carries tags.
func EncodeJPEG(w io.Writer, img image.Image, tags map[uint16]string, quality int) error {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, &jpeg.Options{Quality: quality}); err != nil {
		return err
	}
	app1, err := exifSegment(tags)
	if err != nil {
		return err
	}

	data := body.Bytes()
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return errors.New("encoder produced no SOI marker")
	}
	if _, err := w.Write(data[:2]); err != nil {
		return err
	}
	if _, err := w.Write(app1); err != nil {
		return err
	}
	_, err = w.Write(data[2:])
	return err
}

// exifSegment builds an APP1 segment holding a little-endian TIFF with one IFD.
func exifSegment(tags map[uint16]string) ([]byte, error) {
	ids := make([]int, 0, len(tags))
	for id := range tags {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	le := binary.LittleEndian
	ifdSize := 2 + 12*len(ids) + 4
	dataOffset := 8 + ifdSize

	var ifd, values bytes.Buffer
	ifd.Write(le.AppendUint16(nil, uint16(len(ids))))
	for _, id := range ids {
		encoded, err := utf16le.NewEncoder().String(tags[uint16(id)] + "\x00")
		if err != nil {
			return nil, fmt.Errorf("encode tag %d: %w", id, err)
		}
		v := []byte(encoded)

		entry := make([]byte, 12)
		le.PutUint16(entry[0:], uint16(id))
		le.PutUint16(entry[2:], tiffByte)
		le.PutUint32(entry[4:], uint32(len(v)))
		if len(v) <= 4 {
			copy(entry[8:], v)
		} else {
			le.PutUint32(entry[8:], uint32(dataOffset+values.Len()))
			values.Write(v)
			if values.Len()%2 == 1 {
				values.WriteByte(0)
			}
		}
		ifd.Write(entry)
	}
	ifd.Write(le.AppendUint32(nil, 0))

	var tiff bytes.Buffer
	tiff.WriteString("II")
	tiff.Write(le.AppendUint16(nil, 42))
	tiff.Write(le.AppendUint32(nil, 8))
	tiff.Write(ifd.Bytes())
	tiff.Write(values.Bytes())

	length := 2 + len(exifHeader) + tiff.Len()
	if length > 0xFFFF {
		return nil, errors.New("metadata too large for one APP1 segment")
	}
	seg := []byte{0xFF, markerAPP1}
	seg = binary.BigEndian.AppendUint16(seg, uint16(length))
	seg = append(seg, exifHeader...)
	return append(seg, tiff.Bytes()...), nil
}

// ReadTags extracts the XP text tags from a JPEG written by EncodeJPEG (or any JPEG
// carrying an EXIF IFD0 with BYTE-typed entries).
func ReadTags(r io.Reader) (map[uint16]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, errors.New("not a JPEG stream")
	}

	for i := 2; i+4 <= len(data); {
		if data[i] != 0xFF {
			return nil, fmt.Errorf("bad marker at offset %d", i)
		}
		marker := data[i+1]
		if marker == markerSOS || marker == markerEOI {
			break
		}
		length := int(binary.BigEndian.Uint16(data[i+2:]))
		end := i + 2 + length
		if length < 2 || end > len(data) {
			return nil, fmt.Errorf("truncated segment at offset %d", i)
		}
		payload := data[i+4 : end]
		if marker == markerAPP1 && bytes.HasPrefix(payload, exifHeader) {
			return parseTIFF(payload[len(exifHeader):])
		}
		i = end
	}
	return map[uint16]string{}, nil
}

func parseTIFF(tiff []byte) (map[uint16]string, error) {
	if len(tiff) < 8 {
		return nil, errors.New("short TIFF header")
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errors.New("unknown TIFF byte order")
	}
	off := int(order.Uint32(tiff[4:]))
	if off+2 > len(tiff) {
		return nil, errors.New("IFD0 out of range")
	}
	n := int(order.Uint16(tiff[off:]))
	tags := make(map[uint16]string)
	for k := 0; k < n; k++ {
		e := off + 2 + 12*k
		if e+12 > len(tiff) {
			return nil, errors.New("IFD0 entry out of range")
		}
		id := order.Uint16(tiff[e:])
		typ := order.Uint16(tiff[e+2:])
		count := int(order.Uint32(tiff[e+4:]))
		if typ != tiffByte {
			continue
		}
		var raw []byte
		if count <= 4 {
			raw = tiff[e+8 : e+8+count]
		} else {
			v := int(order.Uint32(tiff[e+8:]))
			if v+count > len(tiff) {
				return nil, fmt.Errorf("tag %d value out of range", id)
			}
			raw = tiff[v : v+count]
		}
		s, err := utf16le.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decode tag %d: %w", id, err)
		}
		tags[id] = string(bytes.TrimRight(s, "\x00"))
	}
	return tags, nil
}

// WriteHeatmap encodes img with the summary tags and stores it at path on fs.
// Every failure is reported as *ArtifactWriteError.
func WriteHeatmap(fs afero.Fs, path string, img image.Image, s Summary, quality int) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return &ArtifactWriteError{Path: path, Err: err}
		}
	}

	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, img, s.Tags(), quality); err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}

	f, err := fs.Create(path)
	if err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return &ArtifactWriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}
	return nil
}
