package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/liip/sheriff"
	"github.com/rs/zerolog/log"
	"github.com/travigo/simtracks/pkg/model"
	"golang.org/x/exp/slices"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var DefaultJSONGroups = []string{"basic", "detailed"}

type pendingFile struct {
	key   string
	path  string
	write func(w io.Writer) error
}

// WriteTables writes the legs table and the track table into dir. Files are
// first written under temporary names and only renamed once every file has
// been written, so a failed run leaves no partial outputs behind. The
// returned map names each written file.
func WriteTables(dir string, interval int, legRows []model.LegRow, points []model.TrackPoint, formats []string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	files := []pendingFile{
		{
			key:   "legs_csv",
			path:  filepath.Join(dir, "legs_table.csv"),
			write: func(w io.Writer) error { return WriteLegsCSV(w, legRows) },
		},
	}
	if slices.Contains(formats, FormatCSV) {
		files = append(files, pendingFile{
			key:   "tracks_csv",
			path:  filepath.Join(dir, fmt.Sprintf("tracks_dt%ds.csv", interval)),
			write: func(w io.Writer) error { return WriteTracksCSV(w, points) },
		})
	}
	if slices.Contains(formats, FormatJSON) {
		files = append(files, pendingFile{
			key:   "tracks_json",
			path:  filepath.Join(dir, fmt.Sprintf("tracks_dt%ds.json", interval)),
			write: func(w io.Writer) error { return WriteTracksJSON(w, points, DefaultJSONGroups) },
		})
	}

	return commit(files)
}

func commit(files []pendingFile) (map[string]string, error) {
	var temporary []string
	cleanup := func() {
		for _, path := range temporary {
			os.Remove(path)
		}
	}

	for _, file := range files {
		tmp, err := os.CreateTemp(filepath.Dir(file.path), "."+filepath.Base(file.path)+".*.tmp")
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("creating %s: %w", file.path, err)
		}
		temporary = append(temporary, tmp.Name())

		writeErr := file.write(tmp)
		closeErr := tmp.Close()
		if err := errors.Join(writeErr, closeErr); err != nil {
			cleanup()
			return nil, fmt.Errorf("writing %s: %w", file.path, err)
		}
	}

	outputs := map[string]string{}
	for i, file := range files {
		if err := os.Rename(temporary[i], file.path); err != nil {
			cleanup()
			for _, written := range outputs {
				os.Remove(written)
			}
			return nil, fmt.Errorf("renaming %s: %w", file.path, err)
		}
		outputs[file.key] = file.path
	}

	for _, file := range files {
		log.Info().Str("file", file.path).Msg("Written output")
	}

	return outputs, nil
}

func WriteLegsCSV(w io.Writer, rows []model.LegRow) error {
	records := make([]legRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, newLegRecord(row))
	}
	return gocsv.Marshal(records, w)
}

func WriteTracksCSV(w io.Writer, points []model.TrackPoint) error {
	records := make([]trackRecord, 0, len(points))
	for _, point := range points {
		records = append(records, newTrackRecord(point))
	}
	return gocsv.Marshal(records, w)
}

// WriteTracksJSON writes the points as a JSON array reduced to the given
// field groups.
func WriteTracksJSON(w io.Writer, points []model.TrackPoint, groups []string) error {
	reduced := make([]interface{}, 0, len(points))
	for _, point := range points {
		document := NewTrackDocument(point)

		value, err := sheriff.Marshal(&sheriff.Options{Groups: groups}, document)
		if err != nil {
			return fmt.Errorf("reducing track point: %w", err)
		}
		reduced = append(reduced, value)
	}

	return json.NewEncoder(w).Encode(reduced)
}
