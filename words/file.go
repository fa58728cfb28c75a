package words

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wfunc/hatgame/logger"
)

// LoadFile reads a dictionary file. Lines are CSV records of
// word,category,level with an optional header row; a file without line
// breaks is read as a single comma separated list of words.
func LoadFile(path string) (*MemorySource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	entries, err := ParseDictionary(raw)
	if err != nil {
		return nil, fmt.Errorf("parse dictionary %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("dictionary %s is empty", path)
	}
	src := NewMemorySource(entries)
	logger.Log.Infow("dictionary loaded", "path", path, "words", src.Len())
	return src, nil
}

func ParseDictionary(raw []byte) ([]Entry, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !bytes.ContainsRune(raw, '\n') {
		var entries []Entry
		for _, w := range strings.Split(string(raw), ",") {
			if w = strings.TrimSpace(w); w != "" {
				entries = append(entries, Entry{Word: w})
			}
		}
		return entries, nil
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	var entries []Entry
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if isHeader(rec) {
				continue
			}
		}
		e := Entry{Word: field(rec, 0), Category: field(rec, 1), Level: strings.ToLower(field(rec, 2))}
		if e.Word != "" {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func isHeader(rec []string) bool {
	h := strings.ToLower(strings.Join(rec, ","))
	return strings.Contains(h, "word") || strings.Contains(h, "слово")
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
