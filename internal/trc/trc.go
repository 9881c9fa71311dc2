package trc

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/marker.studio/internal/markers"
	lengthunits "github.com/banshee-data/marker.studio/internal/units"
)

// DefaultFPS is used when the header's DataRate cannot be parsed.
const DefaultFPS = 30.0

const headerLines = 5

// File is a decoded TRC file.
type File struct {
	// Path is the file name recorded on the PathFileType line.
	Path  string
	Units string
	// Frames and Times are the first two data columns as read.
	Frames []int
	Times  []float64
	Store  *markers.Store
}

// ReadFile opens and decodes a TRC file.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tf, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tf, nil
}

// Read decodes a tab-separated TRC stream. The frame rate is the first field
// of line 3, falling back to DefaultFPS. Marker names come from line 4 and
// data rows follow the header; blank lines are skipped. Empty cells and
// short rows decode as missing samples. The loaded content becomes the
// store's restore point.
func Read(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	var header [headerLines][]string
	for i := range header {
		line, err := br.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, fmt.Errorf("trc header line %d: %w", i+1, io.ErrUnexpectedEOF)
		}
		header[i] = strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	}

	tf := &File{}
	if len(header[0]) > 3 {
		tf.Path = header[0][3]
	}
	fps := DefaultFPS
	if v, err := strconv.ParseFloat(strings.TrimSpace(header[2][0]), 64); err == nil && v > 0 && !math.IsInf(v, 0) {
		fps = v
	}
	if len(header[2]) > 4 {
		tf.Units = strings.TrimSpace(header[2][4])
	}

	// Non-empty names on line 4 map to consecutive XYZ column triples.
	var names []string
	var offsets []int
	seen := make(map[string]bool)
	pos := 0
	if len(header[3]) > 2 {
		for _, raw := range header[3][2:] {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
				offsets = append(offsets, 2+3*pos)
			}
			pos++
		}
	}
	if len(names) == 0 {
		return nil, markers.InvalidParam("markers", nil, "trc header lists no marker names")
	}

	cr := csv.NewReader(br)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	cols := make([][3][]float64, len(names))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("trc data: %w", err)
		}
		if blank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		row := len(tf.Frames)
		frame, err := parseCell(rec, 0)
		if err != nil {
			return nil, fmt.Errorf("trc line %d: frame: %w", line+headerLines, err)
		}
		t, err := parseCell(rec, 1)
		if err != nil {
			return nil, fmt.Errorf("trc line %d: time: %w", line+headerLines, err)
		}
		if math.IsNaN(frame) {
			frame = float64(row + 1)
		}
		tf.Frames = append(tf.Frames, int(frame))
		tf.Times = append(tf.Times, t)
		for i, off := range offsets {
			for a := 0; a < 3; a++ {
				v, err := parseCell(rec, off+a)
				if err != nil {
					return nil, fmt.Errorf("trc line %d: %s: %w", line+headerLines, markers.ColumnName(names[i], markers.Axis(a)), err)
				}
				cols[i][a] = append(cols[i][a], v)
			}
		}
	}

	store, err := markers.New(names, len(tf.Frames), fps)
	if err != nil {
		return nil, fmt.Errorf("trc: %w", err)
	}
	for i, name := range names {
		for _, a := range markers.Axes {
			if err := store.SetColumn(name, a, cols[i][a]); err != nil {
				return nil, err
			}
		}
	}
	store.SetRestorePoint()
	tf.Store = store
	return tf, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseCell(rec []string, i int) (float64, error) {
	if i >= len(rec) {
		return math.NaN(), nil
	}
	s := strings.TrimSpace(rec[i])
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteOptions controls Write.
type WriteOptions struct {
	// Path is recorded on the PathFileType line.
	Path string
	// Units defaults to "m".
	Units string
	// From is the unit the store values are in. When both From and Units
	// are known length units, values are rescaled on the way out.
	From string
}

// Write encodes store as a PathFileType 4 TRC file. Frames are numbered from
// 1 and times are derived from the frame rate. Missing samples are written
// as empty cells.
func Write(w io.Writer, store *markers.Store, opts WriteOptions) error {
	units := opts.Units
	if units == "" {
		units = lengthunits.M
	}
	scale := 1.0
	if opts.From != "" {
		if !lengthunits.IsValid(units) {
			return markers.InvalidParam("units", units, "must be one of "+lengthunits.GetValidUnitsString())
		}
		scale = lengthunits.Factor(opts.From, units)
	}
	names := store.Markers()
	n := store.NumFrames()
	fps := store.FPS()
	rate := strconv.FormatFloat(fps, 'f', -1, 64)

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "PathFileType\t4\t(X/Y/Z)\t%s\n", opts.Path)
	fmt.Fprintf(bw, "DataRate\tCameraRate\tNumFrames\tNumMarkers\tUnits\tOrigDataRate\tOrigDataStartFrame\tOrigNumFrames\n")
	fmt.Fprintf(bw, "%s\t%s\t%d\t%d\t%s\t%s\t1\t%d\n", rate, rate, n, len(names), units, rate, n)

	nameRow := []string{"Frame#", "Time"}
	axisRow := []string{"", ""}
	for i, name := range names {
		nameRow = append(nameRow, name, "", "")
		for _, a := range markers.Axes {
			axisRow = append(axisRow, fmt.Sprintf("%s%d", a, i+1))
		}
	}
	fmt.Fprintln(bw, strings.Join(nameRow, "\t"))
	fmt.Fprintln(bw, strings.Join(axisRow, "\t"))
	fmt.Fprintln(bw)

	cols := make([][3][]float64, len(names))
	for i, name := range names {
		for _, a := range markers.Axes {
			col, err := store.Column(name, a)
			if err != nil {
				return err
			}
			cols[i][a] = col
		}
	}
	row := make([]string, 0, 2+3*len(names))
	for f := 0; f < n; f++ {
		row = append(row[:0], strconv.Itoa(f+1), strconv.FormatFloat(float64(f)/fps, 'f', -1, 64))
		for i := range names {
			for _, a := range markers.Axes {
				v := cols[i][a][f]
				if math.IsNaN(v) || math.IsInf(v, 0) {
					row = append(row, "")
					continue
				}
				row = append(row, strconv.FormatFloat(v*scale, 'f', -1, 64))
			}
		}
		if _, err := fmt.Fprintln(bw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes store to path.
func WriteFile(path string, store *markers.Store, units string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := Write(f, store, WriteOptions{Path: filepath.Base(path), Units: units}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
