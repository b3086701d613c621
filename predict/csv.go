package predict

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// WriteCSV writes one line per tile: row, col and a probability for each header label.
func WriteCSV(w io.Writer, header []string, res []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"row", "col"}, header...)); err != nil {
		return err
	}
	rec := make([]string, 2+len(header))
	for _, r := range res {
		rec = rec[:2]
		rec[0] = strconv.Itoa(r.Row)
		rec[1] = strconv.Itoa(r.Col)
		for _, p := range r.Probs {
			rec = append(rec, strconv.FormatFloat(float64(p), 'f', 4, 32))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the results to the named file.
func SaveCSV(name string, header []string, res []Result) error {
	tmp := filepath.Join(filepath.Dir(name), "."+filepath.Base(name))
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err = WriteCSV(f, header, res); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	slog.Info("saved predictions", "file", name, "tiles", len(res))
	return os.Rename(tmp, name)
}

// OutputName returns the CSV file name for an image: the image path with its
// extension replaced by .csv.
func OutputName(image string) string {
	return image[:len(image)-len(filepath.Ext(image))] + ".csv"
}
