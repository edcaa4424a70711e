package datalake

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kadirpekel/gutensearch/pkg/guten"
)

// trackingFile is the per-node log of identifiers present in the datalake.
// The bucket layout stores one identifier per line; the timestamp layout
// stores id|path. Lines are kept in ascending identifier order and duplicate
// identifiers coalesce on every rewrite.
//
// Read-modify-write cycles hold an advisory fcntl write lock on the file
// itself, so concurrent saves in separate processes on the same node
// serialize. Readers take the shared lock. fcntl locks do not exclude
// threads of the owning process, so an in-process mutex guards the cycle
// as well.
type trackingFile struct {
	path      string
	withPaths bool
	mu        sync.Mutex
}

type trackingEntry struct {
	id  guten.BookID
	dir string
}

// add records id (and its directory for path-carrying layouts), rewriting
// the file sorted and deduplicated.
func (t *trackingFile) add(id guten.BookID, dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := lockFile(f, unix.F_WRLCK); err != nil {
		return fmt.Errorf("locking tracking file: %w", err)
	}
	defer unlockFile(f)

	entries, err := parseEntries(f)
	if err != nil {
		return err
	}

	merged := map[guten.BookID]string{}
	for _, e := range entries {
		merged[e.id] = e.dir
	}
	merged[id] = dir

	ids := make([]guten.BookID, 0, len(merged))
	for i := range merged {
		ids = append(ids, i)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	var buf strings.Builder
	for _, i := range ids {
		if t.withPaths {
			fmt.Fprintf(&buf, "%d|%s\n", i, merged[i])
		} else {
			fmt.Fprintf(&buf, "%d\n", i)
		}
	}

	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.WriteString(buf.String()); err != nil {
		return err
	}
	return f.Sync()
}

// list returns the tracked entries in ascending identifier order.
// A missing tracking file yields an empty list.
func (t *trackingFile) list() ([]trackingEntry, error) {
	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := lockFile(f, unix.F_RDLCK); err != nil {
		return nil, fmt.Errorf("locking tracking file: %w", err)
	}
	defer unlockFile(f)

	entries, err := parseEntries(f)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].id < entries[b].id })
	return entries, nil
}

// lookup returns the recorded directory for id.
func (t *trackingFile) lookup(id guten.BookID) (string, bool, error) {
	entries, err := t.list()
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.id == id {
			return e.dir, true, nil
		}
	}
	return "", false, nil
}

// parseEntries tolerates malformed lines: the scan recovery path exists for
// exactly that case, so bad lines are skipped rather than fatal.
func parseEntries(r io.Reader) ([]trackingEntry, error) {
	var entries []trackingEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idPart, dir, _ := strings.Cut(line, "|")
		n, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil || n <= 0 {
			continue
		}
		entries = append(entries, trackingEntry{id: guten.BookID(n), dir: dir})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// lockFile takes an advisory fcntl lock over the whole file, retrying on
// EINTR. typ is unix.F_WRLCK or unix.F_RDLCK.
func lockFile(f *os.File, typ int16) error {
	fl := unix.Flock_t{
		Type:   typ,
		Whence: int16(io.SeekStart),
		Start:  0,
		Len:    0, // whole file
	}
	for {
		err := unix.FcntlFlock(f.Fd(), unix.F_SETLKW, &fl)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlockFile(f *os.File) {
	fl := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: int16(io.SeekStart),
	}
	_ = unix.FcntlFlock(f.Fd(), unix.F_SETLKW, &fl)
}
