package dictionary

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

//go:embed data/drug_names.txt
var embeddedNames []byte

// chunkPattern matches the binary chunk files produced by WriteChunks.
const chunkPattern = "dict_*.bin"

// Default returns the dictionary built from the bundled drug-name asset.
func Default() *Dictionary {
	names, err := ReadText(bytes.NewReader(embeddedNames))
	if err != nil {
		// the asset is compiled in; a read failure here is a build problem
		panic(fmt.Sprintf("embedded dictionary unreadable: %v", err))
	}
	return New(names)
}

// Load builds a dictionary from a file or a directory.
// A directory is scanned for chunk files first and then for .txt files.
// An empty path yields the bundled default.
func Load(path string) (*Dictionary, error) {
	if path == "" {
		return Default(), nil
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat dictionary path %s: %w", path, err)
	}

	var files []string
	if stat.IsDir() {
		files, err = dictionaryFiles(path)
		if err != nil {
			return nil, err
		}
	} else {
		files = []string{path}
	}

	d := New(nil)
	for _, file := range files {
		names, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		added := d.Extend(names)
		log.Debugf("Loaded %d names (%d new) from %s", len(names), added, file)
	}

	if d.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDictionary, path)
	}
	return d, nil
}

// dictionaryFiles lists chunk files sorted by name, then text files.
func dictionaryFiles(dir string) ([]string, error) {
	chunks, err := filepath.Glob(filepath.Join(dir, chunkPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to scan for chunk files: %w", err)
	}
	texts, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan for text files: %w", err)
	}
	sort.Strings(chunks)
	sort.Strings(texts)

	files := append(chunks, texts...)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no dictionary files in %s", ErrEmptyDictionary, dir)
	}
	return files, nil
}

// LoadFile reads names from a single text or chunk file.
func LoadFile(filename string) ([]string, error) {
	format, err := DetectFileFormat(filename)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary file %s: %w", filename, err)
	}
	defer file.Close()

	switch format {
	case FormatChunk:
		return ReadChunk(bufio.NewReader(file))
	case FormatText:
		return ReadText(file)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filename)
}

// ReadText reads one name per line. Blank lines and lines starting with '#' are skipped.
func ReadText(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read text dictionary: %w", err)
	}
	return names, nil
}

// ReadChunk decodes a binary chunk: an int32 LE name count followed by
// uint16 LE length-prefixed UTF-8 names.
func ReadChunk(r io.Reader) ([]string, error) {
	var total int32
	if err := binary.Read(r, binary.LittleEndian, &total); err != nil {
		return nil, fmt.Errorf("failed to read chunk header: %w", err)
	}
	if total < 0 || total > maxChunkNames {
		return nil, fmt.Errorf("invalid chunk name count %d", total)
	}

	names := make([]string, 0, total)
	for i := 0; i < int(total); i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("failed to read name length (entry %d): %w", i, err)
		}
		buf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read name (entry %d): %w", i, err)
		}
		if !utf8.Valid(buf) {
			return nil, fmt.Errorf("entry %d is not valid UTF-8", i)
		}
		names = append(names, string(buf))
	}
	return names, nil
}

// WriteChunk encodes names in the chunk format read by ReadChunk.
func WriteChunk(w io.Writer, names []string) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(names))); err != nil {
		return fmt.Errorf("failed to write chunk header: %w", err)
	}
	for _, name := range names {
		if len(name) > 0xFFFF {
			return fmt.Errorf("name too long for chunk format: %d bytes", len(name))
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(name))); err != nil {
			return fmt.Errorf("failed to write name length: %w", err)
		}
		if _, err := io.WriteString(w, name); err != nil {
			return fmt.Errorf("failed to write name: %w", err)
		}
	}
	return nil
}

// WriteChunks splits names into dict_0001.bin, dict_0002.bin, ... under dir.
// It returns the written file paths.
func WriteChunks(dir string, names []string, chunkSize int) ([]string, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chunk dir %s: %w", dir, err)
	}

	var written []string
	for start, id := 0, 1; start < len(names); start, id = start+chunkSize, id+1 {
		end := min(start+chunkSize, len(names))
		filename := filepath.Join(dir, fmt.Sprintf("dict_%04d.bin", id))
		if err := writeChunkFile(filename, names[start:end]); err != nil {
			return written, err
		}
		written = append(written, filename)
		log.Debugf("Wrote chunk %d with %d names", id, end-start)
	}
	return written, nil
}

func writeChunkFile(filename string, names []string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create chunk file %s: %w", filename, err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	if err := WriteChunk(buf, names); err != nil {
		return err
	}
	return buf.Flush()
}
