// Package filelist builds and serves the ordered list of detector image
// files for a scan, including a live mode in which files may not exist yet.
package filelist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/avanrossum/diffract/pkg/core"
)

// Config selects the files of a scan. Either Pattern (a doublestar glob)
// or the FirstFile/LastFile range must be set. In live mode the range
// endpoints define a naming scheme with a numeric counter and the files
// need not exist when the list is built.
type Config struct {
	FirstFile string `yaml:"first_file,omitempty"`
	LastFile  string `yaml:"last_file,omitempty"`
	Pattern   string `yaml:"pattern,omitempty"`
	Stepping  int    `yaml:"stepping,omitempty"`
	Live      bool   `yaml:"live,omitempty"`
}

// Manager holds the resolved, ordered file list. Filename access before
// Update is a configuration error.
type Manager struct {
	cfg     Config
	files   []string
	refSize int64
	built   bool
}

// NewManager creates a manager for the given selection. Call Update to
// build the list.
func NewManager(cfg Config) *Manager {
	if cfg.Stepping < 1 {
		cfg.Stepping = 1
	}
	return &Manager{cfg: cfg}
}

// Update builds the ordered file list from the configuration. In live
// mode the names are generated from the counter scheme of the first and
// last file; otherwise the directory is read and files are checked.
func (m *Manager) Update() error {
	switch {
	case m.cfg.Live:
		if err := m.buildLive(); err != nil {
			return err
		}
	case m.cfg.Pattern != "":
		if err := m.buildFromPattern(); err != nil {
			return err
		}
	default:
		if err := m.buildFromRange(); err != nil {
			return err
		}
	}
	m.built = true
	return nil
}

// NFiles returns the number of files in the list.
func (m *Manager) NFiles() int { return len(m.files) }

// Filename returns the path at the given position in the ordered list.
func (m *Manager) Filename(index int) (string, error) {
	if !m.built {
		return "", core.Configf("file list has not been built; call Update first")
	}
	if index < 0 || index >= len(m.files) {
		return "", core.Configf("file index %d outside list of %d files", index, len(m.files))
	}
	return m.files[index], nil
}

// RefSize returns the size of the reference (first existing) file, used to
// decide whether a live file has been completely written. Zero if unknown.
func (m *Manager) RefSize() int64 { return m.refSize }

// FileOK reports whether path exists and, when a reference size is known,
// has been completely written. It is the readiness check behind the
// carry-on gate in live processing.
func (m *Manager) FileOK(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if m.refSize > 0 && info.Size() != m.refSize {
		return false
	}
	return true
}

func (m *Manager) buildFromPattern() error {
	matches, err := doublestar.FilepathGlob(m.cfg.Pattern)
	if err != nil {
		return core.Configf("invalid file pattern %q: %v", m.cfg.Pattern, err)
	}
	if len(matches) == 0 {
		return core.Configf("file pattern %q matched no files", m.cfg.Pattern)
	}
	sort.Strings(matches)
	m.files = stepped(matches, m.cfg.Stepping)
	return m.storeRefSize(m.files[0])
}

func (m *Manager) buildFromRange() error {
	first, last := m.cfg.FirstFile, m.cfg.LastFile
	if first == "" {
		return core.Configf("no first file selected")
	}
	if last == "" || last == first {
		if _, err := os.Stat(first); err != nil {
			return core.Configf("first file %q does not exist", first)
		}
		m.files = []string{first}
		return m.storeRefSize(first)
	}
	if filepath.Dir(first) != filepath.Dir(last) {
		return core.Configf("first and last file must be in the same directory (%q vs %q)",
			filepath.Dir(first), filepath.Dir(last))
	}
	entries, err := os.ReadDir(filepath.Dir(first))
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, filepath.Join(filepath.Dir(first), e.Name()))
		}
	}
	sort.Strings(names)
	i0 := sort.SearchStrings(names, first)
	i1 := sort.SearchStrings(names, last)
	if i0 >= len(names) || names[i0] != first {
		return core.Configf("first file %q does not exist", first)
	}
	if i1 >= len(names) || names[i1] != last {
		return core.Configf("last file %q does not exist", last)
	}
	m.files = stepped(names[i0:i1+1], m.cfg.Stepping)
	return m.storeRefSize(first)
}

// buildLive derives a printf-style naming scheme from the numeric counter
// that distinguishes the first and last file names, and generates the full
// list without touching the file system.
func (m *Manager) buildLive() error {
	first, last := m.cfg.FirstFile, m.cfg.LastFile
	if first == "" || last == "" {
		return core.Configf("live processing requires both a first and a last file")
	}
	if len(first) != len(last) {
		return core.Configf("live processing requires first and last file names of equal length")
	}
	lo := 0
	for lo < len(first) && first[lo] == last[lo] {
		lo++
	}
	hi := len(first)
	for hi > lo && first[hi-1] == last[hi-1] {
		hi--
	}
	// Widen to the full digit run around the differing region.
	for lo > 0 && isDigit(first[lo-1]) {
		lo--
	}
	for hi < len(first) && isDigit(first[hi]) {
		hi++
	}
	if lo == hi || !allDigits(first[lo:hi]) || !allDigits(last[lo:hi]) {
		return core.Configf("cannot derive a counter scheme from %q and %q", first, last)
	}
	start, end := atoi(first[lo:hi]), atoi(last[lo:hi])
	if end < start {
		return core.Configf("last file counter %d precedes first file counter %d", end, start)
	}
	width := hi - lo
	prefix, suffix := first[:lo], first[hi:]
	m.files = m.files[:0]
	for c := start; c <= end; c += m.cfg.Stepping {
		m.files = append(m.files, fmt.Sprintf("%s%0*d%s", prefix, width, c, suffix))
	}
	// Reference size from the first file if it already exists.
	if info, err := os.Stat(first); err == nil {
		m.refSize = info.Size()
	}
	return nil
}

func (m *Manager) storeRefSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat reference file: %w", err)
	}
	m.refSize = info.Size()
	return nil
}

func stepped(in []string, step int) []string {
	if step <= 1 {
		return in
	}
	var out []string
	for i := 0; i < len(in); i += step {
		out = append(out, in[i])
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
